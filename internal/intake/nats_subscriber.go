package intake

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"gt06gateway/internal/core/model"
	"gt06gateway/internal/core/util"
)

// NATSSubscriber accepts command requests published on a subject and announces confirmations on
// another. Requests sent with a reply subject get the submission result back.
type NATSSubscriber struct {
	nc             *nats.Conn
	subject        string
	confirmSubject string
	submitter      Submitter
	sub            *nats.Subscription
	log            *logrus.Entry
}

// SubmitReply is the answer to a request published with a reply subject.
type SubmitReply struct {
	OK      bool                  `json:"ok"`
	Error   string                `json:"error,omitempty"`
	Command *model.PendingCommand `json:"command,omitempty"`
}

func NewNATSSubscriber(nc *nats.Conn, subject, confirmSubject string, submitter Submitter) *NATSSubscriber {
	return &NATSSubscriber{
		nc:             nc,
		subject:        subject,
		confirmSubject: confirmSubject,
		submitter:      submitter,
		log:            logrus.WithFields(logrus.Fields{"component": "nats-intake", "subject": subject}),
	}
}

func (n *NATSSubscriber) Start() error {
	sub, err := n.nc.Subscribe(n.subject, n.handle)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", n.subject, err)
	}
	n.sub = sub
	n.log.Info("listening for commands")
	return nil
}

func (n *NATSSubscriber) Stop() error {
	if n.sub == nil {
		return nil
	}
	return n.sub.Unsubscribe()
}

func (n *NATSSubscriber) handle(msg *nats.Msg) {
	var req model.CommandRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		n.log.WithError(err).Warn("failed to unmarshal command")
		n.reply(msg, SubmitReply{Error: "invalid request body"})
		return
	}
	req.Source = SourceNATS
	if req.Ref == "" {
		req.Ref = util.GenerateID()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cmd, err := n.submitter.Submit(ctx, req)
	if err != nil {
		n.log.WithError(err).WithField("imei", req.IMEI).Warn("command rejected")
		n.reply(msg, SubmitReply{Error: err.Error()})
		return
	}
	n.reply(msg, SubmitReply{OK: true, Command: cmd})
}

func (n *NATSSubscriber) reply(msg *nats.Msg, r SubmitReply) {
	if msg.Reply == "" {
		return
	}
	data, _ := json.Marshal(r)
	if err := msg.Respond(data); err != nil {
		n.log.WithError(err).Warn("failed to reply")
	}
}

// Fulfill publishes the confirmed command on the confirmation subject.
func (n *NATSSubscriber) Fulfill(_ context.Context, cmd model.PendingCommand) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	return n.nc.Publish(n.confirmSubject, data)
}
