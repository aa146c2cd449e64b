package progress

import "io"

// Reader wraps an io.Reader and reports cumulative progress via a callback.
// The offset accounts for bytes already on disk when a transfer resumes, so
// callbacks always see absolute positions within the remote file.
type Reader struct {
	Reader         io.Reader
	Offset         int64
	Total          int64
	OnProgress     func(written int64, total int64)
	totalRead      int64 // cumulative for this reader
	sinceReport    int64 // bytes since last report
	reportInterval int64 // bytes
}

func NewReader(r io.Reader, offset, total, interval int64, cb func(written int64, total int64)) *Reader {
	return &Reader{
		Reader:         r,
		Offset:         offset,
		Total:          total,
		OnProgress:     cb,
		reportInterval: interval,
	}
}

func (pr *Reader) Read(p []byte) (int, error) {
	n, err := pr.Reader.Read(p)
	if n > 0 {
		pr.totalRead += int64(n)
		pr.sinceReport += int64(n)

		if pr.sinceReport >= pr.reportInterval || err == io.EOF {
			pr.OnProgress(pr.Offset+pr.totalRead, pr.Total)
			pr.sinceReport = 0
		}
	}

	return n, err
}

// BytesRead reports how many bytes passed through this reader.
func (pr *Reader) BytesRead() int64 {
	return pr.totalRead
}
