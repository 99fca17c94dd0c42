package models

// IndexReport counts the outcome of indexing one batch of articles.
type IndexReport struct {
	Indexed int `json:"indexed"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
	// Errors maps article id to the failure message.
	Errors map[string]string `json:"errors,omitempty"`
}

// Add folds other into r.
func (r *IndexReport) Add(other IndexReport) {
	r.Indexed += other.Indexed
	r.Skipped += other.Skipped
	r.Failed += other.Failed
	for id, msg := range other.Errors {
		if r.Errors == nil {
			r.Errors = make(map[string]string)
		}
		r.Errors[id] = msg
	}
}
