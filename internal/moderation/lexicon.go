package moderation

// Curated Vietnamese phrase lists used by the hybrid detector. Each list
// carries both diacritic and diacritic-free forms because ASR output
// frequently lacks diacritics.

// FallbackBadPhrases are offensive words and phrases the token model is
// known to miss. They drive both the rule-based scan and the model-span
// filter.
var FallbackBadPhrases = []string{
	// Two-word offensive phrases (with diacritics)
	"thằng chó", "con chó", "đồ chó", "thằng ngu", "con ngu", "đồ ngu",
	"thằng khốn", "con khốn", "đồ khốn", "thằng điên", "con điên", "đồ điên",
	"thằng súc sinh", "con súc sinh", "đồ súc sinh",
	"thằng đần", "con đần", "đồ đần", "thằng ngốc", "con ngốc", "đồ ngốc",
	"thằng hèn", "con hèn", "đồ hèn", "thằng nát", "con nát", "đồ nát",
	// Two-word offensive phrases (without diacritics)
	"thang cho", "con cho", "do cho", "thang ngu", "con ngu", "do ngu",
	"thang khon", "con khon", "do khon", "thang dien", "con dien", "do dien",
	"thang suc sinh", "con suc sinh", "do suc sinh",
	"thang dan", "con dan", "do dan", "thang ngoc", "con ngoc", "do ngoc",
	// Vulgar phrases (with diacritics)
	"con cặc", "cái cặc", "đồ cặc", "thằng cặc",
	"con đĩ", "đồ đĩ", "thằng đĩ",
	"con lồn", "cái lồn", "đồ lồn",
	// Vulgar phrases (without diacritics)
	"con cac", "cai cac", "do cac", "thang cac",
	"con di", "do di", "thang di",
	"con lon", "cai lon", "do lon",
	// Single offensive words (with diacritics)
	"địt", "đụ", "đéo", "vãi", "vl", "vcl", "đmm", "đkm", "clm",
	"cặc", "lồn", "đĩ", "cave", "điếm",
	// Single offensive words (without diacritics)
	"dit", "du", "deo", "vai", "cac", "lon", "di", "diem",
}

// SevereHateIndicators mark spans that warrant the HATE label: violence,
// extreme vulgarity, and slurs.
var SevereHateIndicators = []string{
	// Violence-related (with diacritics)
	"giết", "chết", "hiếp", "cưỡng", "đâm", "chém", "thiêu", "đốt",
	// Violence-related (without diacritics)
	"giet", "chet", "hiep", "cuong", "dam", "chem", "thieu", "dot",
	// Extreme vulgar (with diacritics)
	"địt", "đụ", "hiếp dâm", "cưỡng hiếp",
	// Extreme vulgar (without diacritics)
	"dit", "du", "hiep dam", "cuong hiep",
	// Discriminatory terms
	"súc sinh", "suc sinh", "súc vật", "suc vat",
	// Slurs and extreme insults
	"thằng chó", "con chó", "đồ chó",
	"thang cho", "con cho", "do cho",
}

// MildOffensiveIndicators mark spans that carry the OFFENSIVE label.
var MildOffensiveIndicators = []string{
	// Mild insults (with diacritics)
	"ngu", "điên", "khùng", "đần", "ngốc", "hèn", "nát",
	// Mild insults (without diacritics)
	"dien", "khung", "dan", "ngoc", "hen", "nat",
	// Abbreviations
	"vl", "vcl", "đmm", "đkm", "clm",
	"dmm", "dkm",
	// Mild vulgar (with diacritics)
	"vãi", "đéo", "cặc", "lồn",
	// Mild vulgar (without diacritics)
	"vai", "deo", "cac", "lon",
}
