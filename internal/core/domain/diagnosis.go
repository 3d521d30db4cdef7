package domain

// CategoryCode is the integer emitted by the trained classifier
type CategoryCode int

// Classifier output codes
const (
	CodeAnemia          CategoryCode = 0
	CodeFit             CategoryCode = 1
	CodeHypertension    CategoryCode = 2
	CodeDiabetes        CategoryCode = 3
	CodeHighCholesterol CategoryCode = 4

	// NoPrediction stands for an absent classifier result
	NoPrediction CategoryCode = -1
)

// Category is the predicted health condition
type Category string

const (
	CategoryAnemia          Category = "Anemia"
	CategoryFit             Category = "Fit"
	CategoryHypertension    Category = "Hypertension"
	CategoryDiabetes        Category = "Diabetes"
	CategoryHighCholesterol Category = "High_Cholesterol"
	CategoryUnknown         Category = "Unknown"
)

// RecommendationRecord is the localized guidance attached to a category
type RecommendationRecord struct {
	Title         string `json:"title"`
	Prevention    string `json:"prevention"`
	Treatment     string `json:"treatment"`
	SuggestedPlan string `json:"suggested_plan"`
}

var categoriesByCode = map[CategoryCode]Category{
	CodeAnemia:          CategoryAnemia,
	CodeFit:             CategoryFit,
	CodeHypertension:    CategoryHypertension,
	CodeDiabetes:        CategoryDiabetes,
	CodeHighCholesterol: CategoryHighCholesterol,
}

// recommendations is read-only after package initialization
var recommendations = map[Category]RecommendationRecord{
	CategoryAnemia: {
		Title:         "فقر الدم (الأنيميا)",
		Prevention:    "تغذية سليمة (لحوم حمراء، سبانخ، عدس). تناول فيتامين C لزيادة امتصاص الحديد. تجنب الشاي/القهوة بعد الأكل.",
		Treatment:     "أقراص حديد تحت إشراف الطبيب، وأحيانًا فيتامين B12 أو حمض الفوليك.",
		SuggestedPlan: "حبوب حديد يوميًا + نظام غذائي غني بالحديد + متابعة الهيموجلوبين.",
	},
	CategoryHypertension: {
		Title:         "ارتفاع ضغط الدم",
		Prevention:    "تقليل الملح، ممارسة الرياضة بانتظام، التحكم في الوزن، والبعد عن التدخين.",
		Treatment:     "أدوية خافضة للضغط تحت إشراف الطبيب ومتابعة ضغط الدم.",
		SuggestedPlan: "قياس الضغط يوميًا + أدوية (ACE inhibitors / Beta blockers) + تقليل الملح.",
	},
	CategoryDiabetes: {
		Title:         "مرض السكر",
		Prevention:    "أكل صحي قليل السكر، الحفاظ على وزن مثالي، ممارسة الرياضة.",
		Treatment:     "أدوية خافضة للسكر (مثل Metformin) أو الأنسولين.",
		SuggestedPlan: "نظام غذائي متوازن + رياضة يومية + علاج دوائي حسب الحالة.",
	},
	CategoryHighCholesterol: {
		Title:         "ارتفاع الكوليسترول",
		Prevention:    "تقليل الدهون المشبعة (مقليات، سمن)، زيادة الألياف (خضار، فواكه، شوفان)، رياضة منتظمة.",
		Treatment:     "أدوية خافضة للدهون (Statins) تحت إشراف الطبيب ونظام غذائي صحي.",
		SuggestedPlan: "تقليل أكل الدهون + أدوية Statins + متابعة الدهون بالتحاليل.",
	},
	CategoryFit: {
		Title:         "سليم / طبيعي",
		Prevention:    "الحفاظ على نظام غذائي صحي، ممارسة الرياضة، الكشف الدوري.",
		Treatment:     "لا يوجد علاج، فقط الاستمرار على نمط الحياة الصحي.",
		SuggestedPlan: "متابعة سنوية + نمط حياة صحي.",
	},
	CategoryUnknown: {
		Title:         "غير معروف",
		Prevention:    "لا يمكن تحديد توصيات بسبب عدم كفاية البيانات.",
		Treatment:     "يرجى استشارة طبيب متخصص.",
		SuggestedPlan: "يرجى استشارة طبيب متخصص.",
	},
}

// CategoryFor maps a classifier code to its category, Unknown for any other value
func CategoryFor(code CategoryCode) Category {
	if category, ok := categoriesByCode[code]; ok {
		return category
	}
	return CategoryUnknown
}

// CodeFor returns the classifier code of a category.
// Unknown (and any unrecognized category) maps to NoPrediction.
func CodeFor(category Category) CategoryCode {
	for code, c := range categoriesByCode {
		if c == category {
			return code
		}
	}
	return NoPrediction
}

// RecommendationFor returns the record of category, falling back to Unknown
func RecommendationFor(category Category) RecommendationRecord {
	if rec, ok := recommendations[category]; ok {
		return rec
	}
	return recommendations[CategoryUnknown]
}

// Resolve maps a classifier code to its category and recommendation.
// Out-of-range codes and NoPrediction resolve to Unknown instead of failing.
func Resolve(code CategoryCode) (Category, RecommendationRecord) {
	category := CategoryFor(code)
	return category, RecommendationFor(category)
}

// Categories returns every category ordered by code, Unknown last
func Categories() []Category {
	return []Category{
		CategoryAnemia,
		CategoryFit,
		CategoryHypertension,
		CategoryDiabetes,
		CategoryHighCholesterol,
		CategoryUnknown,
	}
}

// IsValidCategory checks if a category name is one of the six known categories
func IsValidCategory(category string) bool {
	_, ok := recommendations[Category(category)]
	return ok
}

// Recommendations returns a copy of the static recommendation table
func Recommendations() map[Category]RecommendationRecord {
	out := make(map[Category]RecommendationRecord, len(recommendations))
	for category, rec := range recommendations {
		out[category] = rec
	}
	return out
}
