package deployment

import (
	"time"

	"rewind/api/model"
)

// Select returns the complete record whose directory is the canonical
// string for ts. Matching is exact; there is no nearest-neighbour fallback.
func Select(records []model.DeploymentRecord, ts time.Time) (model.DeploymentRecord, error) {
	if len(records) == 0 {
		return model.DeploymentRecord{}, &model.Error{Kind: model.KindNoDeploymentsFound}
	}

	want := model.DirectoryName(ts)
	for _, r := range records {
		if r.Directory != want {
			continue
		}
		if !r.Complete() {
			return model.DeploymentRecord{}, &model.Error{
				Kind:      model.KindTimestampNotFound,
				Timestamp: want,
				Reason:    "deployment is missing " + model.TemplateFile,
			}
		}
		return r, nil
	}
	return model.DeploymentRecord{}, &model.Error{Kind: model.KindTimestampNotFound, Timestamp: want}
}
