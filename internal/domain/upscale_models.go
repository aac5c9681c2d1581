package domain

// UpscaleModelOption describes one known Upscayl NCNN model. Each model is a
// .bin weights file plus a .param network description living side by side in
// the models directory.
type UpscaleModelOption struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	FileName      string `json:"fileName"`
	ParamFileName string `json:"paramFileName"`
	URL           string `json:"url"`
	ParamURL      string `json:"paramUrl"`
	SizeLabel     string `json:"sizeLabel,omitempty"`
	Description   string `json:"description,omitempty"`
	Downloaded    bool   `json:"downloaded"`
	LocalPath     string `json:"localPath,omitempty"`
}
