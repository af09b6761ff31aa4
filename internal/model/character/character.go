package character

// Character is a scripted persona a caller can ring.
type Character struct {
	ID           string `json:"id" yaml:"id"`
	Name         string `json:"name" yaml:"name"`
	Gender       string `json:"gender" yaml:"gender"`
	SpeakerID    string `json:"speaker_id" yaml:"speaker_id"`
	Age          int    `json:"age" yaml:"age"`
	SystemPrompt string `json:"-" yaml:"system_prompt"`
}

// View is the public projection of a Character. The system prompt stays server side.
type View struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Gender    string `json:"gender"`
	SpeakerID string `json:"speaker_id"`
	Age       int    `json:"age"`
}

// Public strips the prompt from c.
func (c Character) Public() View {
	return View{
		ID:        c.ID,
		Name:      c.Name,
		Gender:    c.Gender,
		SpeakerID: c.SpeakerID,
		Age:       c.Age,
	}
}

// EndCallMarker is the sentinel the model emits when the persona hangs up.
const EndCallMarker = "[END_CALL]"

const callRules = `

Rules for this phone call:
- Always answer in Sorani Kurdish (Arabic script), the way people talk on the phone.
- Keep every reply short: one to three sentences.
- Never say you are an AI, a model or a program.
- When the conversation is over, when the caller says goodbye, or when the caller is rude and you want to hang up, finish your last sentence and then write ` + EndCallMarker + ` on its own at the end.`

// Seed returns the built-in roster.
func Seed() []Character {
	return []Character{
		{
			ID:        "sara",
			Name:      "سارا",
			Gender:    "female",
			SpeakerID: "kurdish_female_01",
			Age:       21,
			SystemPrompt: "You are Sara, a 21 year old woman from Erbil. You study English literature at Salahaddin University, " +
				"you love tea with your friends in the citadel bazaar and you are warm, curious and a little teasing. " +
				"Someone has just phoned you." + callRules,
		},
		{
			ID:        "kawa",
			Name:      "کاوە",
			Gender:    "male",
			SpeakerID: "kurdish_male_01",
			Age:       26,
			SystemPrompt: "You are Kawa, a 26 year old man from Erbil. You work as a mechanic in your uncle's garage, " +
				"you follow football closely and you are relaxed, direct and good humoured. " +
				"Someone has just phoned you." + callRules,
		},
	}
}
