package voice

// Prompt text for the IVR menus. Keys match the flow engine's prompt keys.
// English is the fallback when a language has no translation.

const (
	LangEnglish = "en"
	LangHausa   = "ha"
	LangYoruba  = "yo"
)

var promptCatalog = map[string]map[string]string{
	"welcome": {
		LangEnglish: "Welcome to the farm advisory line.",
		LangHausa:   "Barka da zuwa layin ba da shawara kan noma.",
		LangYoruba:  "Kaabo si ila imoran oko.",
	},
	"language_menu": {
		LangEnglish: "For English, press 1. Don Hausa, danna 2. Fun Yoruba, te 3. To speak with an agent, press 0.",
	},
	"record_query": {
		LangEnglish: "Please describe your question about your crops or livestock after the beep. Press any key when you are done.",
		LangHausa:   "Da fatan za a bayyana tambayarka game da amfanin gona ko dabbobi bayan karar kara. Danna kowane maballi idan ka gama.",
		LangYoruba:  "Jowo se alaye ibeere re nipa eso oko tabi eran-osin leyin ohun beep naa. Te bọtini eyikeyi nigbati o ba pari.",
	},
	"post_ai_menu": {
		LangEnglish: "To ask another question, press 1. To hear the answer again, press 2. To speak with an agent, press 0. To end the call, press 9.",
		LangHausa:   "Don yin wata tambaya, danna 1. Don sake jin amsar, danna 2. Don magana da wakili, danna 0. Don kare kiran, danna 9.",
		LangYoruba:  "Lati beere ibeere miiran, te 1. Lati tun gbo idahun naa, te 2. Lati ba asoju soro, te 0. Lati pari ipe naa, te 9.",
	},
	"transfer": {
		LangEnglish: "Connecting you to an agricultural extension agent. Please hold.",
		LangHausa:   "Ana hada ka da jami'in ba da shawara kan noma. Da fatan za a jira.",
		LangYoruba:  "A n so o po mo asoju imoran oko. Jowo duro.",
	},
	"goodbye": {
		LangEnglish: "Thank you for calling. Goodbye.",
		LangHausa:   "Mun gode da kiranka. Sai an jima.",
		LangYoruba:  "O seun fun pipe wa. O dabo.",
	},
	"ai_fallback": {
		LangEnglish: "We could not process your question right now. Please try again later or press 0 to speak with an agent.",
		LangHausa:   "Ba mu iya sarrafa tambayarka a yanzu ba. Da fatan a sake gwadawa daga baya ko danna 0 don magana da wakili.",
		LangYoruba:  "A ko le se ibeere re ni bayi. Jowo gbiyanju leyin tabi te 0 lati ba asoju soro.",
	},
}

// PromptText resolves a prompt key to spoken text in language, falling back
// to English when no translation exists. Unknown keys return "".
func PromptText(key, language string) string {
	texts, ok := promptCatalog[key]
	if !ok {
		return ""
	}
	if t, ok := texts[language]; ok {
		return t
	}
	return texts[LangEnglish]
}

// SayLanguage maps an IVR language code to a telephony TTS locale.
func SayLanguage(language string) string {
	switch language {
	case LangHausa, LangYoruba:
		// No native TTS locale; the closest supported voice.
		return "en-GB"
	default:
		return "en-US"
	}
}
