package analysis

// PromptVersion identifies Prompt in logs and persisted records. Bump it
// whenever the instruction text or the required shape changes.
const PromptVersion = "consultation-v1"

// AudioMIMEType is the declared type of the audio payload.
const AudioMIMEType = "audio/wav"

// Summary field names requested by Prompt.
const (
	SummaryPresentation = "presentation"
	SummaryLifeEffect   = "life_effect"
	SummaryGoal         = "goal"
)

// Prompt is the fixed instruction sent alongside the audio.
const Prompt = `Analyze this recording of a medical consultation between a doctor and a patient.
Reply with one JSON object in a ` + "```json" + ` code block, using exactly this shape:

{
    "transcript": [
        {"speaker": "Doctor", "text": "what the doctor said"},
        {"speaker": "Patient", "text": "what the patient replied"}
    ],
    "qa_analysis": {
        "cause": {
            "work": "work posture or stress",
            "sleep": "sleep quality",
            "sports_injuries": "injuries from sport or hobbies",
            "mva": "motor vehicle accidents",
            "summary": "the most likely cause"
        },
        "presentation": {
            "main_complaint": "when the pain is felt, exactly where, and how it feels (achy, stiff, dull, burning, superficial, numb, tingling, sharp, deep, clicking, locking, throbbing, weakening, shooting)",
            "onset": "when it started",
            "is_chronic": "yes or no, chronic meaning longer than 3 months"
        },
        "life_effect": {
            "activities_impact": "effect on daily activities, work or study, sleep, hobbies or sport, mental state and relationships",
            "nerve_root": "nerve root symptoms",
            "clumsy": "clumsiness",
            "focus": "trouble focusing",
            "immune": "immune system",
            "stress": "stress level"
        },
        "intent": {
            "previous_care": "previous care or adjustments",
            "previous_exercises": "previous exercises",
            "lifestyle_changes": "changes to lifestyle or environment",
            "why_not_healed": "why the problem has not healed",
            "goal": "what the patient wants to do more of once the problem is gone"
        }
    },
    "summary": {
        "presentation": "symptoms and condition",
        "life_effect": "impact on daily life",
        "goal": "treatment goal"
    }
}

Transcript rules:
- "transcript" is an array; each entry has "speaker" ("Doctor" or "Patient") and "text".
- Keep each logical statement as its own entry.
- Attribute speakers from context, voice and content.

qa_analysis rules:
- Read the whole conversation before answering.
- Answer in one or two sentences and quote the patient where possible.
- Start yes/no answers with "Yes" or "No" and then explain.
- Write "Not mentioned" when the recording does not cover a question. Do not guess.
- Each "summary" field condenses its section.

summary rules:
- "presentation" covers symptoms, duration and severity.
- "life_effect" highlights the largest impacts on daily life.
- "goal" follows from activities_impact: work or study problems mean being more productive, sleep problems mean sleeping better, hobby or sport problems mean getting back to them, mental state problems mean feeling healthier and happier.
- At most three sentences each.

The reply must be valid JSON.`
