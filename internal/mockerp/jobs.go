package mockerp

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/vrsandeep/bom-preview/internal/models"
	"github.com/vrsandeep/bom-preview/internal/workbook"
)

type jobKind string

const (
	kindPreview jobKind = "preview"
	kindImport  jobKind = "import"
)

// stages a job walks through, one per scheduler step.
var stages = map[jobKind][]string{
	kindPreview: {"reading workbook", "rubber", "steel", "raw materials", "production"},
	kindImport:  {"rubber", "steel", "raw materials", "production"},
}

type job struct {
	id       string
	kind     jobKind
	topic    string
	status   models.JobStatus
	progress int
	stage    int
	message  string
	result   interface{}
	// failWith makes the job end in error instead of finishing.
	failWith string
}

func newJob(kind jobKind) *job {
	id := uuid.New().String()
	return &job{
		id:     id,
		kind:   kind,
		topic:  fmt.Sprintf("bom_%s_%s", kind, id),
		status: models.StatusQueued,
	}
}

func (j *job) statusPayload() map[string]interface{} {
	p := map[string]interface{}{
		"job_id":   j.id,
		"status":   j.status,
		"progress": j.progress,
	}
	if j.stage > 0 && j.stage <= len(stages[j.kind]) {
		p["stage"] = stages[j.kind][j.stage-1]
	}
	if j.message != "" {
		p["message"] = j.message
	}
	return p
}

// step advances the job by one stage and reports whether anything changed.
func (j *job) step() bool {
	if j.status.Terminal() {
		return false
	}
	total := len(stages[j.kind])
	j.stage++
	if j.failWith != "" && j.stage >= total/2+1 {
		j.status = models.StatusError
		j.message = j.failWith
		return true
	}
	if j.stage > total {
		j.status = models.StatusFinished
		j.progress = 100
		j.stage = total
		return true
	}
	j.status = models.StatusRunning
	j.progress = (j.stage - 1) * 100 / total
	return true
}

// sectionSheets maps preview sections to the sheet each is read from.
var sectionSheets = []struct {
	sheet string
	key   string
}{
	{"Rubber", "rubber_validation"},
	{"Steel", "steel_validation"},
	{"RM", "rm_validation"},
	{"Production", "prod_validation"},
}

// buildPreview validates every data row of the known sheets. A row is "new"
// unless its first cell is blank, which is an error.
func buildPreview(wb *workbook.Workbook) (*models.PreviewResult, error) {
	res := &models.PreviewResult{
		Status:           "success",
		RubberValidation: []models.RubberItem{},
		SteelValidation:  []models.SteelItem{},
		RmValidation:     []models.RmItem{},
		ProdValidation:   []models.ProdItem{},
	}
	found := 0
	for _, sec := range sectionSheets {
		sheet, ok := wb.Sheet(sec.sheet)
		if !ok {
			continue
		}
		found++
		for _, row := range sheet.Rows {
			key, fields, status := rowFields(sheet.Header, row)
			switch sec.key {
			case "rubber_validation":
				res.RubberValidation = append(res.RubberValidation, models.RubberItem{RubberFormular: key, Status: status, Fields: fields})
			case "steel_validation":
				res.SteelValidation = append(res.SteelValidation, models.SteelItem{SteelCode: key, Status: status, Fields: fields})
			case "rm_validation":
				res.RmValidation = append(res.RmValidation, models.RmItem{RmItem: key, Status: status, Fields: fields})
			case "prod_validation":
				res.ProdValidation = append(res.ProdValidation, models.ProdItem{ItemCode: key, Status: status, Fields: fields})
			}
		}
	}
	if found == 0 {
		return nil, fmt.Errorf("no BOM sheets found in %s", wb.Filename)
	}
	return res, nil
}

func rowFields(header, row []string) (string, map[string]models.ValidationField, string) {
	fields := make(map[string]models.ValidationField, len(header))
	status := "new"
	for i, h := range header {
		v := ""
		if i < len(row) {
			v = strings.TrimSpace(row[i])
		}
		fs := "new"
		if i == 0 && v == "" {
			fs = "error"
			status = "error"
		}
		fields[h] = models.ValidationField{Value: v, Status: fs}
	}
	key := ""
	if len(row) > 0 {
		key = strings.TrimSpace(row[0])
	}
	return key, fields, status
}

// importSummary is the result of an import job.
func importSummary(preview *models.PreviewResult) map[string]interface{} {
	return map[string]interface{}{
		"status":   "success",
		"imported": preview.Counts(),
	}
}
