package workbook

import (
	"io"
	"log"
)

func newTestLogger(w io.Writer) *log.Logger {
	return log.New(w, "[workbook] ", 0)
}
