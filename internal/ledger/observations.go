package ledger

import (
	"github.com/canopyledger/census/internal/catalog"
	"github.com/canopyledger/census/internal/censuserr"
	"github.com/canopyledger/census/internal/hashid"
	"github.com/canopyledger/census/internal/types"
)

// ObservationRow is one normalized, content-addressed row of
// observations_long: a transaction's measurements reshaped for
// long-term storage, independent of the DSL/resolver machinery used to
// derive tree_uid.
type ObservationRow struct {
	ObsID    string
	SurveyID string
	Date     string
	Site     string
	Plot     string
	Tag      string
	DBHMM    *int
	Health   *int
	Standing *bool
	Notes    string
	Origin   string
	SourceTx string
	TreeUID  *string
	Genus    *string
	Species  *string
	Code     *string
}

// AssembleObservations reshapes a transaction's assembled measurements
// into observation rows, deriving each row's obs_id from (tx_id,
// row_number, site, plot, tag, date).
func AssembleObservations(measurements []types.MeasurementRow, cat *catalog.Catalog, txID string) ([]ObservationRow, error) {
	observations := make([]ObservationRow, 0, len(measurements))
	for _, row := range measurements {
		surveyID, ok := cat.SurveyForDate(row.Date)
		if !ok {
			return nil, censuserr.Buildf("no survey covers date %s", row.Date.Format("2006-01-02"))
		}
		isoDate := row.Date.Format("2006-01-02")
		obsID := hashid.ObservationID(txID, row.RowNumber, row.Site, row.Plot, row.Tag, isoDate)

		observations = append(observations, ObservationRow{
			ObsID:    obsID,
			SurveyID: surveyID,
			Date:     isoDate,
			Site:     row.Site,
			Plot:     row.Plot,
			Tag:      row.Tag,
			DBHMM:    row.DBHMM,
			Health:   row.Health,
			Standing: row.Standing,
			Notes:    row.Notes,
			Origin:   string(row.Origin),
			SourceTx: txID,
			TreeUID:  row.TreeUID,
			Genus:    row.Genus,
			Species:  row.Species,
			Code:     row.Code,
		})
	}
	return observations, nil
}
