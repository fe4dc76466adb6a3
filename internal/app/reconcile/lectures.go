package reconcile

import (
	"context"
	"fmt"

	"github.com/dalemusser/workshophub/internal/app/legacy"
	"github.com/dalemusser/workshophub/internal/domain/models"
	"go.uber.org/zap"
)

// syncLectures mirrors the legacy lecture list of event into the local
// lecture store, keyed by legacy_id. Rows without a legacy_id or whose
// speaker has no local person are skipped. A fetch failure is reported
// and leaves local lectures untouched. It returns how many rows were saved.
func (e *Engine) syncLectures(ctx context.Context, event *models.Event, report *ErrorReport, log *zap.Logger) int {
	rows, err := e.remote.GetLectures(ctx, event.Code)
	if err != nil {
		report.AddMessage(KindLegacyConnector, fmt.Sprintf("could not fetch the lectures of %s: %v", event.Code, err))
		return 0
	}
	saved := 0
	for _, row := range rows {
		l, ok := e.lectureFromSnapshot(ctx, event, row)
		if !ok {
			continue
		}
		if err := e.lectures.UpsertByLegacyID(ctx, &l); err != nil {
			log.Warn("save lecture", zap.Int64("lecture_legacy_id", *l.LegacyID), zap.Error(err))
			continue
		}
		saved++
	}
	return saved
}

func (e *Engine) lectureFromSnapshot(ctx context.Context, event *models.Event, row legacy.Snapshot) (models.Lecture, bool) {
	id, ok := row.Int("legacy_id")
	if !ok || id <= 0 {
		return models.Lecture{}, false
	}
	speakerID, ok := row.Int("person_id")
	if !ok {
		return models.Lecture{}, false
	}
	speaker, err := e.people.GetByLegacyID(ctx, speakerID)
	if err != nil {
		if !isNotFound(err) {
			e.log.Warn("load lecture speaker", zap.Int64("legacy_id", speakerID), zap.Error(err))
		}
		return models.Lecture{}, false
	}

	l := models.Lecture{EventID: event.ID, PersonID: speaker.ID, LegacyID: &id}
	l.Title, _ = row.String("title")
	loc := event.Location()
	if t, ok := row.TimeIn("start_time", loc); ok {
		l.StartTime = &t
	}
	if t, ok := row.TimeIn("end_time", loc); ok {
		l.EndTime = &t
	}
	return l, true
}
