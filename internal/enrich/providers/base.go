package providers

import (
	"time"

	"github.com/radlabs/personalization-engine/internal/enrich"
	"github.com/radlabs/personalization-engine/internal/util"
)

func okRecord(id string, priority int, payload map[string]string) enrich.RawRecord {
	return enrich.RawRecord{
		Provider:  id,
		Priority:  priority,
		Success:   true,
		Payload:   payload,
		FetchedAt: time.Now().UTC(),
	}
}

func failRecord(id string, priority int, err error) enrich.RawRecord {
	return enrich.RawRecord{
		Provider:  id,
		Priority:  priority,
		Success:   false,
		Error:     util.RedactSecrets(err.Error()),
		FetchedAt: time.Now().UTC(),
	}
}
