package marker_test

import (
	"errors"
	"testing"

	"github.com/calvinalkan/scribe/internal/marker"
	"github.com/calvinalkan/scribe/internal/testutil"
)

func FuzzRepair(f *testing.F) {
	f.Add([]byte{0, 5, 1, 2, 0, 7, 3, 0})
	f.Add([]byte{2, 1, 0, 3, 4, 2, 3, 3, 1})
	f.Add([]byte{4, 0, 0, 6, 6, 2, 3, 2, 1})

	f.Fuzz(func(t *testing.T, data []byte) {
		doc := testutil.NewByteStream(data).NextMarkdown(40)

		labelled := marker.AddSectionMarkers(doc, marker.WithTimestamp(ts))

		repaired, err := marker.Repair(labelled, marker.WithTimestamp(ts))
		if err != nil {
			if !errors.Is(err, marker.ErrRepairFailed) {
				t.Fatalf("unexpected error type: %v", err)
			}

			return
		}

		if valid, msg := marker.Validate(repaired); !valid {
			t.Fatalf("repair output invalid: %s\n%s", msg, repaired)
		}

		again, err := marker.Repair(repaired, marker.WithTimestamp(ts))
		if err != nil {
			t.Fatalf("second repair failed: %v", err)
		}

		if again != repaired {
			t.Fatalf("repair is not idempotent:\nfirst:\n%s\nsecond:\n%s", repaired, again)
		}
	})
}
