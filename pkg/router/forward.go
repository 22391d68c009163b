package router

import (
	"time"

	"github.com/coldwave/flake-go/pkg/interaction"
	"github.com/coldwave/flake-go/pkg/wire"
)

// finishFunc post-processes the host's answer before it is relayed.
type finishFunc func(status wire.Status, props wire.PropArray) (wire.Status, wire.PropArray)

// forward sends the request f, addressed to the service-hosted object o,
// to its host as an indication of type t. The host sees a token of the
// router's choosing; its answer reaches s under the original token. When
// the host has too many requests outstanding s gets StatusPending.
func (r *Router) forward(s *session, f *wire.Frame, o *object, t wire.MessageType, payload wire.PropArray, finish finishFunc) {
	start := time.Now()
	ind := wire.NewFrame(t, f.Source, o.addr, payload)
	err := o.host.req.Go(ind, func(conf *interaction.Confirmation) {
		r.metrics.forward(t, conf.Status, start)
		status, props := conf.Status, conf.Payload
		if finish != nil {
			status, props = finish(status, props)
		}
		s.reply(f, status, props)
	})
	if err != nil {
		status := wire.StatusOf(err)
		r.metrics.forward(t, status, start)
		s.logger.Debug("forward failed", "msg_type", t, "object", o.addr, "status", status)
		s.reply(f, status, wire.PropArray{})
	}
}
