package domain

// KpiRecord is one metric value for one reporting year, as stored in the KPI index.
type KpiRecord struct {
	Category string  `json:"category"`
	Metric   string  `json:"metric"`
	Unit     string  `json:"unit"`
	Year     string  `json:"year"`
	Value    float64 `json:"value"`
	Notes    string  `json:"notes"`
	Source   string  `json:"source"`
}

// NarrativeRecord is a passage of report text.
type NarrativeRecord struct {
	Page    int    `json:"page"`
	Section string `json:"section,omitempty"`
	Text    string `json:"text"`
}

// KpiValue is one point of a KpiTable series.
type KpiValue struct {
	Year    string  `json:"year"`
	Value   float64 `json:"value"`
	Assured bool    `json:"assured"`
}

// KpiTable groups the values of a single (metric, unit) pair.
type KpiTable struct {
	Category string     `json:"category"`
	Metric   string     `json:"metric"`
	Unit     string     `json:"unit"`
	Values   []KpiValue `json:"values"`
	Source   string     `json:"source"`
}

// Mode trades retrieval breadth and model capability for latency.
type Mode string

const (
	ModeFast     Mode = "FAST"
	ModeAccurate Mode = "ACCURATE"
)

// QueryResult is the answer to one question.
type QueryResult struct {
	Mode      Mode              `json:"mode"`
	Answer    string            `json:"answer"`
	KpiTables []KpiTable        `json:"kpiTables"`
	Sources   []NarrativeRecord `json:"sources"`
	Time      float64           `json:"time"`
}
