package domain

// Settings contains user-selectable runtime configuration.
type Settings struct {
	UpscaylBin string `json:"upscaylBin"`
	InputDir   string `json:"inputDir"`
	OutputDir  string `json:"outputDir"`
	TempDir    string `json:"tempDir"`
	UploadDir  string `json:"uploadDir"`
}

// ProcessingSettings is the per-batch configuration. It is captured once at
// dispatch time and never changes for the duration of a batch run.
type ProcessingSettings struct {
	Upscale bool   `json:"upscale"`
	Model   string `json:"model"`
}

// UpscaylStatus is the read view of the upscaler configuration.
type UpscaylStatus struct {
	UpscaylBin       string `json:"upscaylBin"`
	UpscaylAvailable bool   `json:"upscaylAvailable"`
	ModelsDir        string `json:"modelsDir"`
}

// BatchRequest triggers processing of one named input file, or of every
// file currently in the input directory when Filename is "all".
type BatchRequest struct {
	Filename string             `json:"filename"`
	Settings ProcessingSettings `json:"settings"`
}

// BatchAck is returned immediately by the batch trigger, before any file
// has begun processing. Actual progress arrives on the event stream.
type BatchAck struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
}

// OutputImage is one finished JPEG in the gallery listing.
type OutputImage struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}
