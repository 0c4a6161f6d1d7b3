package models

// ValidationField is a single cell-level verdict in a preview result.
type ValidationField struct {
	Value  string `json:"value"`
	Status string `json:"status"` // "ok", "error", "same", "update", "new"
}

type RubberItem struct {
	RubberFormular string                     `json:"rubber_formular"`
	Status         string                     `json:"status"`
	Fields         map[string]ValidationField `json:"fields"`
	Warning        string                     `json:"warning,omitempty"`
}

type SteelItem struct {
	SteelCode string                     `json:"steel_code"`
	Status    string                     `json:"status"`
	Fields    map[string]ValidationField `json:"fields"`
}

type RmItem struct {
	RmItem  string                     `json:"rm_item"`
	Status  string                     `json:"status"`
	Fields  map[string]ValidationField `json:"fields"`
	Message string                     `json:"message,omitempty"`
	Error   string                     `json:"error,omitempty"`
}

type ProdItem struct {
	ItemCode string                     `json:"item_code"`
	Status   string                     `json:"status"`
	Fields   map[string]ValidationField `json:"fields"`
	Message  string                     `json:"message,omitempty"`
	Warning  string                     `json:"warning,omitempty"`
}

// PreviewResult is the output of a finished preview job and the input of an
// import job.
type PreviewResult struct {
	Status           string       `json:"status"`
	RubberValidation []RubberItem `json:"rubber_validation"`
	SteelValidation  []SteelItem  `json:"steel_validation"`
	RmValidation     []RmItem     `json:"rm_validation"`
	ProdValidation   []ProdItem   `json:"prod_validation"`
}

// PreviewCounts is the per-section row count shown after a preview.
type PreviewCounts struct {
	Rubber int `json:"rubber"`
	Steel  int `json:"steel"`
	Rm     int `json:"rm"`
	Prod   int `json:"prod"`
}

func (p *PreviewResult) Counts() PreviewCounts {
	return PreviewCounts{
		Rubber: len(p.RubberValidation),
		Steel:  len(p.SteelValidation),
		Rm:     len(p.RmValidation),
		Prod:   len(p.ProdValidation),
	}
}
