package classifier

import (
	"fmt"
	"strings"
)

// Labels is the fixed candidate set. The order defines score indices.
var Labels = []string{
	"Bacterial Leaf Blight",
	"Brown Spot",
	"Leaf Smut",
	"Leaf Blast",
	"Sheath Blight",
	"False Smut Disease",
	"Healthy Rice Leaf",
	"Leaf scald",
}

// DefaultPromptTemplate turns a label into the text that is embedded.
const DefaultPromptTemplate = "a photo of a rice leaf with %s"

// Prompts renders one prompt per label using template, which must contain a single %s.
func Prompts(template string) []string {
	if !strings.Contains(template, "%s") {
		template = DefaultPromptTemplate
	}
	out := make([]string, len(Labels))
	for i, l := range Labels {
		out[i] = fmt.Sprintf(template, l)
	}
	return out
}

// Cure holds remediation advice in English, Sinhala and Tamil.
type Cure struct {
	EN string
	SI string
	TA string
}

var fallbackCure = Cure{
	EN: "No specific cure information available for this disease.",
	SI: "මෙම රෝගය සඳහා නිශ්චිත ප්‍රතිකාර තොරතුරු නොමැත.",
	TA: "இந்த நோய்க்கு குறிப்பிட்ட சிகிச்சை தகவல் இல்லை.",
}

var cures = map[string]Cure{
	"Bacterial Leaf Blight": {
		EN: "No specific chemical cure available. Focus on resistant varieties, proper nutrient management, and drainage.",
		SI: "නිශ්චිත රසායනික ප්‍රතිකාරයක් නොමැත. ප්‍රතිරෝධී වර්ග, නිවැරදි පෝෂක කළමනාකරණය සහ ජල නිස්සාරණය මත අවධානය යොමු කරන්න.",
		TA: "குறிப்பிட்ட வேதியியல் சிகிச்சை கிடையாது. தடுப்பு வகைகள், சரியான ஊட்டச்சத்து மேலாண்மை மற்றும் வடிகால் பராமரிப்பை கவனிக்கவும்.",
	},
	"Brown Spot": {
		EN: "Hexaconazole 50g/L EC 160ml per acre",
		SI: "Hexaconazole 50g/L EC 160ml අක්කරයකට",
		TA: "Hexaconazole 50g/L EC 160ml ஒரு ஏக்கருக்கு",
	},
	"Leaf Smut": {
		EN: "Tebuconazole 250g/l EW 50ml per acre",
		SI: "Tebuconazole 250g/l EW 50ml අක්කරයකට",
		TA: "Tebuconazole 250g/l EW 50ml ஒரு ஏக்கருக்கு",
	},
	"Leaf Blast": {
		EN: "Tebuconazole 250g/l EW 50ml per acre",
		SI: "Tebuconazole 250g/l EW 50ml අක්කරයකට",
		TA: "Tebuconazole 250g/l EW 50ml ஒரு ஏக்கருக்கு",
	},
	"Sheath Blight": {
		EN: "Hexaconazole 50g/L EC 160ml per acre",
		SI: "Hexaconazole 50g/L EC 160ml අක්කරයකට",
		TA: "Hexaconazole 50g/L EC 160ml ஒரு ஏக்கருக்கு",
	},
	"False Smut Disease": {
		EN: "Consult local agricultural extension for specific recommendations.",
		SI: "විශේෂ නිර්දේශ සඳහා ප්‍රාදේශීය කෘෂි දිගුවෙන් උපදෙස් ලබා ගන්න.",
		TA: "சிறப்பு பரிந்துரைகளுக்காக உள்ளூர் வேளாண் அலுவலகத்தை அணுகவும்.",
	},
	"Healthy Rice Leaf": {
		EN: "Maintain good agricultural practices.",
		SI: "හොඳ කෘෂි ක්‍රමෝපායන් රැකීම වැදගත්ය.",
		TA: "நல்ல வேளாண்மை பழக்கவழக்கங்களை பின்பற்றுங்கள்.",
	},
	"Leaf scald": {
		EN: "Improve drainage and reduce nitrogen fertilization.",
		SI: "ජල නිස්සාරණය වැඩිදියුණු කර නයිට්‍රජන් පොහොර අඩු කරන්න.",
		TA: "வடிகால்களை மேம்படுத்தவும், நைட்ரஜன் உரத்தின் அளவைக் குறைக்கவும்.",
	},
}

// Remedy returns the advice for label, or the generic fallback for unknown labels.
func Remedy(label string) Cure {
	if c, ok := cures[label]; ok {
		return c
	}
	return fallbackCure
}
