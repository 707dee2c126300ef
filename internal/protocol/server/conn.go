package server

import (
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"gt06gateway/internal/protocol/gt06"
)

// conn is the I/O side of one device connection.
type conn struct {
	id     uint64
	nc     net.Conn
	out    chan []byte
	closed chan struct{}
	once   sync.Once
}

func (c *conn) close() {
	c.once.Do(func() {
		close(c.closed)
		c.nc.Close()
	})
}

func (s *TCPServer) onAccept(nc net.Conn) {
	sess := s.registry.Open(nc.RemoteAddr().String(), s.now())
	c := &conn{
		id:     sess.ID,
		nc:     nc,
		out:    make(chan []byte, s.opts.OutboundQueue),
		closed: make(chan struct{}),
	}
	s.conns[c.id] = c

	s.log.WithFields(logrus.Fields{"conn_id": c.id, "peer": sess.Peer}).Info("device connected")

	go s.readLoop(c)
	go s.writeLoop(c)
}

// Send implements service.Transport. It must be called on the event loop. A connection whose
// outbound queue is full is torn down.
func (s *TCPServer) Send(connID uint64, frame []byte) error {
	c, ok := s.conns[connID]
	if !ok {
		return ErrConnClosed
	}
	select {
	case c.out <- frame:
		return nil
	default:
		s.closeConn(c, ErrOutboundFull)
		return ErrOutboundFull
	}
}

// closeConn discards the connection and its session. It runs on the event loop.
func (s *TCPServer) closeConn(c *conn, reason error) {
	if _, ok := s.conns[c.id]; !ok {
		return
	}
	delete(s.conns, c.id)
	sess, _ := s.registry.Close(c.id)
	c.close()

	fields := logrus.Fields{"conn_id": c.id}
	if sess != nil {
		fields["peer"] = sess.Peer
		if imei := sess.IMEI(); imei != "" {
			fields["imei"] = imei
		}
	}
	log := s.log.WithFields(fields)
	if reason == nil || errors.Is(reason, io.EOF) {
		log.Info("device disconnected")
	} else {
		log.WithError(reason).Info("device disconnected")
	}
}

func (s *TCPServer) readLoop(c *conn) {
	buf := make([]byte, s.opts.ReadBufferSize)
	r := gt06.NewReassembler(s.opts.MaxBufferedBytes)
	for {
		if s.opts.IdleTimeout > 0 {
			c.nc.SetReadDeadline(time.Now().Add(s.opts.IdleTimeout))
		}
		n, err := c.nc.Read(buf)
		if n > 0 {
			frames, ferr := r.Feed(buf[:n])
			for _, frame := range frames {
				frame := frame
				if !s.post(func() { s.onFrame(c.id, frame) }) {
					return
				}
			}
			if ferr != nil {
				err = ferr
			}
		}
		if err != nil {
			s.post(func() {
				if live, ok := s.conns[c.id]; ok && live == c {
					s.closeConn(c, err)
				}
			})
			return
		}
	}
}

func (s *TCPServer) writeLoop(c *conn) {
	for {
		select {
		case frame := <-c.out:
			if s.opts.WriteTimeout > 0 {
				c.nc.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
			}
			if _, err := c.nc.Write(frame); err != nil {
				s.post(func() { s.closeConn(c, err) })
				return
			}
		case <-c.closed:
			return
		}
	}
}
