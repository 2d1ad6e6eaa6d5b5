package report

import (
	"io"

	"github.com/sarchlab/snoopsim/stats"
)

// Print writes r's plain-text dump to w.
func Print(w io.Writer, r *stats.Report) error {
	_, err := r.WriteTo(w)
	return err
}
