// Package relay copies bytes between the two legs of a session.
package relay

import (
	"io"
	"sync"
	"time"

	"tlex/util"
)

// Result summarises one relay run.
type Result struct {
	AToB     int64
	BToA     int64
	Duration time.Duration
	// Err is the first error that was not an ordinary shutdown (EOF or
	// use of a closed stream).  It is informational only.
	Err error
}

// Pipe copies a→b and b→a concurrently, each direction with its own fixed
// util.DefaultBufSize buffer, until one direction stops.  The first
// direction to stop, for any reason, closes both a and b so the other
// direction unblocks.  Pipe returns once both directions have ended.
func Pipe(a, b io.ReadWriteCloser) Result {
	start := time.Now()

	var once sync.Once
	closeBoth := func() {
		once.Do(func() {
			a.Close()
			b.Close()
		})
	}

	var (
		res  Result
		errs [2]error
		wg   sync.WaitGroup
	)
	wg.Add(2)

	go func() {
		defer wg.Done()
		res.AToB, errs[0] = copyStream(b, a)
		closeBoth()
	}()

	go func() {
		defer wg.Done()
		res.BToA, errs[1] = copyStream(a, b)
		closeBoth()
	}()

	wg.Wait()
	res.Duration = time.Since(start)
	for _, err := range errs {
		if !util.IsHarmless(err) {
			res.Err = err
			break
		}
	}
	return res
}

// copyStream forwards src to dst one chunk at a time.  A clean EOF on src
// returns a nil error.
func copyStream(dst io.Writer, src io.Reader) (int64, error) {
	bp := util.GetBuf()
	defer util.PutBuf(bp)
	buf := *bp

	var total int64
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			w, werr := dst.Write(buf[:n])
			total += int64(w)
			if werr != nil {
				return total, werr
			}
			if w != n {
				return total, io.ErrShortWrite
			}
		}
		if rerr == io.EOF {
			return total, nil
		}
		if rerr != nil {
			return total, rerr
		}
	}
}
