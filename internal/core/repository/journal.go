package repository

import (
	"context"

	"github.com/sirupsen/logrus"

	"gt06gateway/internal/core/model"
)

type journalOp struct {
	save *model.PendingCommand
	imei string
}

// Journal applies pending-command writes to a repository from its own goroutine, in the order
// they were queued. Callers never block: when the queue is full the write is dropped and logged.
type Journal struct {
	repo CommandRepository
	ops  chan journalOp
	done chan struct{}
	log  *logrus.Entry
}

func NewJournal(repo CommandRepository, queue int) *Journal {
	return &Journal{
		repo: repo,
		ops:  make(chan journalOp, queue),
		done: make(chan struct{}),
		log:  logrus.WithField("component", "journal"),
	}
}

// Save queues an upsert of cmd.
func (j *Journal) Save(cmd model.PendingCommand) {
	j.enqueue(journalOp{save: &cmd, imei: cmd.IMEI})
}

// Delete queues removal of the pending command of imei.
func (j *Journal) Delete(imei string) {
	j.enqueue(journalOp{imei: imei})
}

func (j *Journal) enqueue(op journalOp) {
	select {
	case j.ops <- op:
	default:
		j.log.WithField("imei", op.imei).Warn("journal queue full, write dropped")
	}
}

// Run applies queued writes until ctx is done, then drains what is left.
func (j *Journal) Run(ctx context.Context) {
	defer close(j.done)
	for {
		select {
		case op := <-j.ops:
			j.apply(op)
		case <-ctx.Done():
			for {
				select {
				case op := <-j.ops:
					j.apply(op)
				default:
					return
				}
			}
		}
	}
}

// Done is closed once Run has returned.
func (j *Journal) Done() <-chan struct{} {
	return j.done
}

func (j *Journal) apply(op journalOp) {
	var err error
	if op.save != nil {
		err = j.repo.Save(op.save)
	} else {
		err = j.repo.Delete(op.imei)
	}
	if err != nil {
		j.log.WithError(err).WithField("imei", op.imei).Error("failed to persist pending command")
	}
}
