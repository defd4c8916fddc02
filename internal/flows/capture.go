package flows

import (
	"context"

	"suraksha-jal/internal/prompt"
	"suraksha-jal/internal/schema"
)

type FaceInput struct {
	PhotoDataURI string `json:"photoDataUri"`
}

type FaceOutput struct {
	IsValid bool   `json:"isValid"`
	Reason  string `json:"reason,omitempty"`
}

var faceFlow = &Flow[FaceInput, FaceOutput]{
	Name: "verifyFace",
	Input: schema.Object("face verification request",
		schema.Required("photoDataUri", schema.DataURI("Camera capture of the registering health worker")),
	),
	Output: schema.Object("face verification result",
		schema.Required("isValid", schema.Boolean("True only if exactly one real, live human face is clearly visible")),
		schema.Optional("reason", schema.String("Why the photo was rejected; empty when valid")),
	),
	Template: prompt.MustNew("verifyFace", `You verify identity photos for health worker registration.
Check this camera capture: {{media .PhotoDataURI}}
The photo is valid only if it shows exactly one real human face, clearly visible and well lit, taken live (not a photo of a screen or a printed picture).
If it is not valid, explain the reason in one short sentence.`),
}

// VerifyFace never reports a reason for a valid capture.
func (s *Service) VerifyFace(ctx context.Context, in FaceInput) (FaceOutput, error) {
	out, err := faceFlow.Run(ctx, s.gen, in)
	if err != nil {
		return out, err
	}
	if out.IsValid {
		out.Reason = ""
	}
	return out, nil
}

type TranscribeInput struct {
	AudioDataURI string  `json:"audioDataUri"`
	Language     *string `json:"language,omitempty"`
}

type TranscribeOutput struct {
	Text string `json:"text"`
}

var transcribeFlow = &Flow[TranscribeInput, TranscribeOutput]{
	Name: "transcribeAudio",
	Input: schema.Object("speech transcription request",
		schema.Required("audioDataUri", schema.DataURI("Recorded speech as a data URI")),
		schema.Optional("language", schema.String("Language hint for the speech")),
	),
	Output: schema.Object("transcription",
		schema.Required("text", schema.String("Exact transcription of the speech, empty if nothing was said")),
	),
	Template: prompt.MustNew("transcribeAudio", `Transcribe the speech in this recording word for word: {{media .AudioDataURI}}
{{- with .Language}}
The speaker is using {{.}}; write the transcription in that language.{{else}}
Detect the spoken language automatically and write the transcription in that language.{{end}}
Return only what was said, without commentary.`),
}

func (s *Service) TranscribeAudio(ctx context.Context, in TranscribeInput) (TranscribeOutput, error) {
	return transcribeFlow.Run(ctx, s.gen, in)
}
