package flows

import "strings"

// MedicineForm holds the medicine lookup inputs. A typed name and a captured
// photo are mutually exclusive: setting one clears the other.
type MedicineForm struct {
	name  *string
	photo *string
}

// SetName records a typed name. A non-empty name discards any captured
// photo; an empty one just clears the name.
func (f *MedicineForm) SetName(name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		f.name = nil
		return
	}
	f.name = &name
	f.photo = nil
}

func (f *MedicineForm) SetPhoto(dataURI string) {
	if dataURI == "" {
		f.photo = nil
		return
	}
	f.photo = &dataURI
	f.name = nil
}

func (f *MedicineForm) Name() (string, bool) {
	if f.name == nil {
		return "", false
	}
	return *f.name, true
}

func (f *MedicineForm) Photo() (string, bool) {
	if f.photo == nil {
		return "", false
	}
	return *f.photo, true
}

// Input builds the façade input; unset fields stay nil.
func (f *MedicineForm) Input(language *string) MedicineInput {
	in := MedicineInput{Language: language}
	if f.name != nil {
		name := *f.name
		in.MedicineName = &name
	}
	if f.photo != nil {
		photo := *f.photo
		in.PhotoDataURI = &photo
	}
	return in
}
