package flows

import (
	"context"
	"strings"

	"suraksha-jal/internal/prompt"
	"suraksha-jal/internal/schema"
)

var (
	likelihoods = []string{"low", "medium", "high"}
	urgencies   = []string{"self-care", "consult-doctor", "emergency"}
	timesOfDay  = []string{"morning", "afternoon", "evening", "night"}
)

func languageField() schema.Field {
	return schema.Optional("language", schema.String("Language the answer must be written in"))
}

func disclaimerField() schema.Field {
	return schema.Required("disclaimer", schema.String("A short medical disclaimer advising the user to consult a doctor"))
}

type SymptomInput struct {
	Symptoms string  `json:"symptoms"`
	Age      *int    `json:"age,omitempty"`
	Language *string `json:"language,omitempty"`
}

type PossibleCondition struct {
	Name        string `json:"name"`
	Likelihood  string `json:"likelihood"`
	Description string `json:"description"`
}

type SymptomOutput struct {
	PossibleConditions []PossibleCondition `json:"possibleConditions"`
	Advice             string              `json:"advice"`
	Urgency            string              `json:"urgency"`
	Disclaimer         string              `json:"disclaimer"`
}

var symptomFlow = &Flow[SymptomInput, SymptomOutput]{
	Name: "checkSymptoms",
	Input: schema.Object("symptom check request",
		schema.Required("symptoms", schema.Text("Symptoms described by the user")),
		schema.Optional("age", schema.Integer("Age in years").Min(1)),
		languageField(),
	),
	Output: schema.Object("possible conditions for the described symptoms",
		schema.Required("possibleConditions", schema.ArrayOf("Conditions that could explain the symptoms, most likely first",
			schema.Object("condition",
				schema.Required("name", schema.Text("Condition name")),
				schema.Required("likelihood", schema.Enum("How likely the condition is", likelihoods...)),
				schema.Required("description", schema.String("One or two sentences about the condition")),
			))),
		schema.Required("advice", schema.String("Home care and next steps in simple words")),
		schema.Required("urgency", schema.Enum("How soon care should be sought", urgencies...)),
		disclaimerField(),
	),
	Template: prompt.MustNew("checkSymptoms", `You are a community health assistant for rural India focused on water-borne and common diseases.
A user reports the following symptoms: {{.Symptoms}}
{{- with .Age}}
The user is {{.}} years old.{{end}}
List the possible conditions with their likelihood, give simple advice on what to do next and say how urgently care is needed.
Always include a disclaimer that this is not a diagnosis.
{{- with .Language}}
Respond in {{.}}.{{end}}`),
}

func (s *Service) CheckSymptoms(ctx context.Context, in SymptomInput) (SymptomOutput, error) {
	out, err := symptomFlow.Run(ctx, s.gen, in)
	if err != nil {
		return out, err
	}
	out.Disclaimer = withDisclaimer(out.Disclaimer)
	return out, nil
}

type MedicineInput struct {
	MedicineName *string `json:"medicineName,omitempty"`
	PhotoDataURI *string `json:"photoDataUri,omitempty"`
	Language     *string `json:"language,omitempty"`
}

type MedicineOutput struct {
	MedicineName string   `json:"medicineName"`
	Uses         []string `json:"uses"`
	SideEffects  []string `json:"sideEffects"`
	Precautions  []string `json:"precautions"`
	Disclaimer   string   `json:"disclaimer"`
}

var medicineFlow = &Flow[MedicineInput, MedicineOutput]{
	Name: "medicineInfo",
	Input: schema.Object("medicine lookup request",
		schema.Optional("medicineName", schema.Text("Name of the medicine")),
		schema.Optional("photoDataUri", schema.DataURI("Photo of the medicine or its packaging as a data URI")),
		languageField(),
	),
	Output: schema.Object("medicine information",
		schema.Required("medicineName", schema.Text("Identified medicine name")),
		schema.Required("uses", schema.ArrayOf("What the medicine is used for", schema.String("use"))),
		schema.Required("sideEffects", schema.ArrayOf("Common side effects", schema.String("side effect"))),
		schema.Required("precautions", schema.ArrayOf("Precautions and warnings", schema.String("precaution"))),
		disclaimerField(),
	),
	Template: prompt.MustNew("medicineInfo", `You are a pharmacist explaining medicines to people with little medical background.
{{- with .MedicineName}}
Give information about the medicine named "{{.}}".{{end}}
{{- with .PhotoDataURI}}
Identify the medicine in this photo and give information about it: {{media .}}{{end}}
Describe its uses, common side effects and precautions in plain words and include a disclaimer.
{{- with .Language}}
Respond in {{.}}.{{end}}`),
	Check: func(in MedicineInput) error {
		if in.MedicineName == nil && in.PhotoDataURI == nil {
			return fieldError("medicineName", "or photoDataUri is required")
		}
		return nil
	},
}

func (s *Service) MedicineInfo(ctx context.Context, in MedicineInput) (MedicineOutput, error) {
	out, err := medicineFlow.Run(ctx, s.gen, in)
	if err != nil {
		return out, err
	}
	out.Disclaimer = withDisclaimer(out.Disclaimer)
	return out, nil
}

type DosageInput struct {
	MedicineName string   `json:"medicineName"`
	Age          int      `json:"age"`
	Weight       *float64 `json:"weight,omitempty"`
	Condition    *string  `json:"condition,omitempty"`
	Language     *string  `json:"language,omitempty"`
}

type DosageOutput struct {
	Dosage     string   `json:"dosage"`
	Timing     string   `json:"timing"`
	TimeOfDay  []string `json:"timeOfDay"`
	Disclaimer string   `json:"disclaimer"`
}

var dosageFlow = &Flow[DosageInput, DosageOutput]{
	Name: "suggestDosage",
	Input: schema.Object("dosage suggestion request",
		schema.Required("medicineName", schema.Text("Name of the medicine")),
		schema.Required("age", schema.Integer("Age of the patient in years").Min(1)),
		schema.Optional("weight", schema.Number("Weight of the patient in kilograms").Above(0)),
		schema.Optional("condition", schema.String("Condition the medicine is taken for")),
		languageField(),
	),
	Output: schema.Object("dosage suggestion",
		schema.Required("dosage", schema.Text("Amount per dose and how many times a day")),
		schema.Required("timing", schema.Text("When to take it relative to food, e.g. after food")),
		schema.Required("timeOfDay", schema.ArrayOf("Times of day to take the medicine",
			schema.Enum("time of day", timesOfDay...)).Len(1, 0)),
		disclaimerField(),
	),
	Template: prompt.MustNew("suggestDosage", `You are a careful medical assistant suggesting a typical dosage.
Medicine: {{.MedicineName}}
Patient age: {{.Age}} years
{{- with .Weight}}
Patient weight: {{.}} kg{{end}}
{{- with .Condition}}
Taken for: {{.}}{{end}}
State the usual dosage, whether to take it before, with or after food, and at which times of day (morning, afternoon, evening, night).
A disclaimer telling the user to confirm with a doctor is mandatory.
{{- with .Language}}
Respond in {{.}}.{{end}}`),
}

func (s *Service) SuggestDosage(ctx context.Context, in DosageInput) (DosageOutput, error) {
	out, err := dosageFlow.Run(ctx, s.gen, in)
	if err != nil {
		return out, err
	}
	out.Disclaimer = withDisclaimer(out.Disclaimer)
	return out, nil
}

type PrescriptionInput struct {
	PhotoDataURI string  `json:"photoDataUri"`
	Language     *string `json:"language,omitempty"`
}

type PrescribedMedicine struct {
	Name         string `json:"name"`
	Dosage       string `json:"dosage"`
	Frequency    string `json:"frequency"`
	Instructions string `json:"instructions"`
}

type PrescriptionOutput struct {
	Medicines  []PrescribedMedicine `json:"medicines"`
	Notes      string               `json:"notes,omitempty"`
	Disclaimer string               `json:"disclaimer"`
}

var prescriptionFlow = &Flow[PrescriptionInput, PrescriptionOutput]{
	Name: "readPrescription",
	Input: schema.Object("prescription reading request",
		schema.Required("photoDataUri", schema.DataURI("Photo of a handwritten or printed prescription as a data URI")),
		languageField(),
	),
	Output: schema.Object("medicines found on the prescription",
		schema.Required("medicines", schema.ArrayOf("Every medicine on the prescription", schema.Object("medicine",
			schema.Required("name", schema.Text("Medicine name")),
			schema.Required("dosage", schema.String("Strength or amount per dose")),
			schema.Required("frequency", schema.String("How often to take it in plain language, e.g. twice a day")),
			schema.Required("instructions", schema.String("Other instructions such as before food or for 5 days")),
		))),
		schema.Optional("notes", schema.String("Anything unreadable or uncertain")),
		disclaimerField(),
	),
	Template: prompt.MustNew("readPrescription", `Read this prescription and list every medicine with its dosage, frequency and instructions: {{media .PhotoDataURI}}
Write the frequency in plain language such as "twice a day" or "every 8 hours". Never use shorthand like BD, TDS, OD or 1-0-1.
Mention anything you could not read in the notes. A disclaimer is mandatory.
{{- with .Language}}
Respond in {{.}}.{{end}}`),
}

func (s *Service) ReadPrescription(ctx context.Context, in PrescriptionInput) (PrescriptionOutput, error) {
	out, err := prescriptionFlow.Run(ctx, s.gen, in)
	if err != nil {
		return out, err
	}
	out.Disclaimer = withDisclaimer(out.Disclaimer)
	for i := range out.Medicines {
		out.Medicines[i].Frequency = strings.TrimSpace(out.Medicines[i].Frequency)
	}
	return out, nil
}
