package main

import (
	"fmt"
	"os"
	"time"

	"github.com/apex/log"
	"github.com/schollz/progressbar/v3"
)

// barObserver renders scheduler notifications as a terminal progress bar.
type barObserver struct {
	bar *progressbar.ProgressBar
}

func newBarObserver(total int) *barObserver {
	bar := progressbar.NewOptions(
		total,
		progressbar.OptionSetDescription("testing"),
		progressbar.OptionShowDescriptionAtLineEnd(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(os.Stderr, "\n")
		}),
		progressbar.OptionSetWriter(os.Stderr),
	)
	return &barObserver{bar: bar}
}

func (o *barObserver) BatchStarted(index, size int) {
	log.Debugf("batch %d: probing %d servers", index+1, size)
}

func (o *barObserver) ProbeSettled(completed, total int, ip string) {
	o.bar.Describe(fmt.Sprintf("current: %s", ip))
	_ = o.bar.Set(completed)
}

func (o *barObserver) finish() {
	_ = o.bar.Finish()
}
