package engine

// ProgressEvent is the structured form of one line of transfer output. It is
// one of PercentUpdate, StatusLine, Completed or Unrecognized.
type ProgressEvent interface {
	progressEvent()
}

// PercentUpdate carries a completion percentage and whatever throughput
// figures were printed next to it. Empty strings mean "not present".
type PercentUpdate struct {
	Percent    int
	Speed      string
	BytesDone  string
	BytesTotal string
	ETA        string
}

// StatusCategory groups status lines by transfer phase.
type StatusCategory string

const (
	CategoryFetching         StatusCategory = "Fetching"
	CategoryBuildingFileList StatusCategory = "BuildingFileList"
	CategoryTransferring     StatusCategory = "Transferring"
	CategoryFinalizing       StatusCategory = "Finalizing"
	CategoryInfo             StatusCategory = "Info"
)

// StatusLine is a recognised, non-numeric line such as "Pulling from ...".
type StatusLine struct {
	Category StatusCategory
	Text     string
}

// Completed is reported when the tool prints its own end-of-run summary.
type Completed struct {
	Success bool
	Summary string
}

// Unrecognized wraps any line no pattern matched.
type Unrecognized struct {
	Raw string
}

func (PercentUpdate) progressEvent() {}
func (StatusLine) progressEvent()    {}
func (Completed) progressEvent()     {}
func (Unrecognized) progressEvent()  {}
