package router

import (
	"time"

	"github.com/coldwave/flake-go/pkg/log"
	"github.com/coldwave/flake-go/pkg/model"
	"github.com/coldwave/flake-go/pkg/wire"
)

// dispatch handles one request on the session's reader goroutine.
// Requests other than connect, auth and ping need a completed handshake.
func (r *Router) dispatch(s *session, f *wire.Frame) {
	switch f.Type {
	case wire.MsgConnect:
		r.handleConnect(s, f)
		return
	case wire.MsgAuth:
		r.handleAuth(s, f)
		return
	case wire.MsgPing:
		s.reply(f, wire.StatusOK, f.Payload)
		return
	}

	if !s.isConnected() {
		s.reply(f, wire.StatusNotConnected, wire.PropArray{})
		return
	}
	f.Source = s.Addr()

	switch f.Type {
	case wire.MsgDisconnect:
		s.reply(f, wire.StatusOK, wire.PropArray{})
		s.Close()
	case wire.MsgCreateObject:
		r.createObject(s, f)
	case wire.MsgQueryObjects:
		r.queryObjects(s, f)
	case wire.MsgDestroyObject:
		r.destroyObject(s, f)
	case wire.MsgDeleteObject:
		r.deleteObject(s, f)
	case wire.MsgCreateProperty:
		r.createProperty(s, f)
	case wire.MsgDeleteProperty:
		r.deleteProperty(s, f)
	case wire.MsgSetProperties:
		r.setProperties(s, f)
	case wire.MsgGetProperties:
		r.getProperties(s, f)
	case wire.MsgJoinGroup:
		r.joinGroup(s, f)
	case wire.MsgLeaveGroup:
		r.leaveGroup(s, f)
	case wire.MsgCustom:
		r.custom(s, f)
	case wire.MsgSaveChanges:
		r.saveChanges(s, f)
	case wire.MsgConfigure:
		r.configure(s, f)
	case wire.MsgOpenProperty, wire.MsgSeek:
		s.reply(f, wire.StatusNotImpl, wire.PropArray{})
	default:
		s.reply(f, wire.StatusUnsupported, wire.PropArray{})
	}
}

func addrPayload(addr wire.Addr) wire.PropArray {
	return wire.NewPropArray(wire.NewUint16(wire.TagObjectAddr, uint16(addr)))
}

func (r *Router) handleConnect(s *session, f *wire.Frame) {
	if s.isConnected() {
		s.reply(f, wire.StatusOK, addrPayload(s.Addr()))
		return
	}

	a := r.cfg.Authenticator
	if a == nil || a.AuthenticationType() == wire.AuthNone || s.isAuthenticated() {
		r.accept(s, f)
		return
	}

	// Credentials sent along with connect skip the challenge.
	if f.Payload.Has(wire.TagAuthUser) {
		if a.OnAuthResponseReceived(wire.PropArray{}, f.Payload) == wire.StatusOK {
			s.setAuthenticated()
			r.accept(s, f)
			return
		}
		r.metrics.authFailures.Inc()
		if n := s.failAuth(); n >= r.cfg.MaxAuthAttempts {
			s.reply(f, wire.StatusUnauthorized, wire.PropArray{})
			s.logger.Warn("too many auth attempts, closing wire", "attempts", n)
			s.Close()
			return
		}
	}

	challenge, status := a.OnAuthChallengeRequested(f.Payload)
	if status != wire.StatusOK {
		s.reply(f, status, wire.PropArray{})
		return
	}
	s.setChallenge(challenge)
	s.reply(f, wire.StatusUnauthorized, challenge)
}

func (r *Router) handleAuth(s *session, f *wire.Frame) {
	a := r.cfg.Authenticator
	challenge, pending := s.pendingChallenge()
	if a == nil || !pending || s.isConnected() {
		s.reply(f, wire.StatusRefused, wire.PropArray{})
		return
	}

	if a.OnAuthResponseReceived(challenge, f.Payload) != wire.StatusOK {
		r.metrics.authFailures.Inc()
		n := s.failAuth()
		s.reply(f, wire.StatusUnauthorized, challenge)
		if n >= r.cfg.MaxAuthAttempts {
			s.logger.Warn("too many auth attempts, closing wire", "attempts", n)
			s.Close()
		}
		return
	}
	s.setAuthenticated()
	r.accept(s, f)
}

// accept completes the handshake answering f.
func (r *Router) accept(s *session, f *wire.Frame) {
	addr, err := r.alloc.Allocate()
	if err != nil {
		s.reply(f, wire.StatusNoAlloc, wire.PropArray{})
		return
	}
	r.handshakes.Remove(s)

	r.mu.Lock()
	r.sessions[addr] = s
	r.mu.Unlock()

	s.attach(addr)
	r.metrics.sessions.Inc()
	s.reply(f, wire.StatusOK, addrPayload(addr))
	r.logger.Info("session connected", "peer", addr, "remote", s.fc.Wire().RemoteAddr(), "authenticated", s.isAuthenticated())
}

// target resolves the object f is addressed to and checks that s may
// reach it. It answers f itself when not.
func (r *Router) target(s *session, f *wire.Frame) (*object, bool) {
	o := r.objects.get(f.Destination)
	if o == nil {
		s.reply(f, wire.StatusNotFound, wire.PropArray{})
		return nil, false
	}
	if !r.reachable(s, o) {
		s.reply(f, wire.StatusUnauthorized, wire.PropArray{})
		return nil, false
	}
	return o, true
}

func (r *Router) reachable(s *session, o *object) bool {
	return !o.requiresAuth || o.host == s || s.isAuthenticated()
}

// registryTag reports whether the router owns tag for every object.
func registryTag(t wire.Tag) bool {
	switch {
	case t.SameID(wire.TagObjectType),
		t.SameID(wire.TagObjectAddr),
		t.SameID(wire.TagBroadcastAddr),
		t.SameID(wire.TagObjectUUID),
		t.SameID(wire.TagCreationTime):
		return true
	}
	return false
}

// outcome folds per-property results into one status: OK when all were
// accepted, the first failure when none was, PartialSuccess otherwise.
func outcome(accepted, total int, first wire.Status) wire.Status {
	switch {
	case accepted == total:
		return wire.StatusOK
	case accepted == 0:
		return first
	default:
		return wire.StatusPartialSuccess
	}
}

func (r *Router) createObject(s *session, f *wire.Frame) {
	var host *session
	switch f.Destination {
	case wire.RouterAddr:
	case s.Addr():
		host = s
	default:
		s.reply(f, wire.StatusRefused, wire.PropArray{})
		return
	}

	addr, err := r.alloc.Allocate()
	if err != nil {
		s.reply(f, wire.StatusNoAlloc, wire.PropArray{})
		return
	}
	bcast, err := r.alloc.Allocate()
	if err != nil {
		r.alloc.Release(addr)
		s.reply(f, wire.StatusNoAlloc, wire.PropArray{})
		return
	}

	props := f.Payload.Clone()
	for _, t := range props.Tags() {
		if registryTag(t) {
			props.Remove(t)
		}
	}
	typ, _ := f.Payload.Get(wire.TagObjectType).AsUniqueID()
	requiresAuth, _ := f.Payload.Get(wire.TagRequiresAuth).AsBool()
	o := &object{
		addr:         addr,
		bcast:        bcast,
		typ:          typ,
		id:           wire.NewUniqueID(),
		host:         host,
		creator:      s.Addr(),
		requiresAuth: requiresAuth,
		created:      time.Now(),
		props:        model.NewPropertyStore(props),
	}
	r.objects.add(o)
	r.metrics.objects.WithLabelValues(hostLabel(o)).Inc()
	r.changes.Prime(addr, props)

	s.reply(f, wire.StatusOK, wire.NewPropArray(
		wire.NewUint16(wire.TagObjectAddr, uint16(addr)),
		wire.NewUint16(wire.TagBroadcastAddr, uint16(bcast)),
		wire.NewUUID(wire.TagObjectType, typ),
		wire.NewUUID(wire.TagObjectUUID, o.id),
	))
	r.fanout(wire.NewFrame(wire.MsgObjectCreated, addr, wire.AnnounceAddr, o.baseProps()), wire.EmptyAddr)
	s.logger.Debug("object created", "object", addr, "type", typ, "host", hostLabel(o))
}

func (r *Router) queryObjects(s *session, f *wire.Frame) {
	typ, _ := f.Payload.Get(wire.TagObjectType).AsUniqueID()

	var columns model.ColumnSet
	if p, ok := f.Payload.Lookup(wire.TagColumnSet); ok {
		if arr, ok := p.Value.(wire.Array); ok {
			for _, id := range arr.Uint16s() {
				columns = append(columns, wire.Tag(id)<<16)
			}
		}
	}

	p, err := model.TableProperty(r.objects.query(typ, columns))
	if err != nil {
		s.logger.Debug("queryObjects result too large", "error", err)
		s.reply(f, wire.StatusNoAlloc, wire.PropArray{})
		return
	}
	s.reply(f, wire.StatusOK, wire.NewPropArray(p))
}

func (r *Router) destroyObject(s *session, f *wire.Frame) {
	o, ok := r.target(s, f)
	if !ok {
		return
	}
	if !o.routerHosted() && o.host != s {
		s.reply(f, wire.StatusRefused, wire.PropArray{})
		return
	}
	s.reply(f, wire.StatusOK, wire.PropArray{})
	r.destroy(o)
}

// deleteObject lets the host of a service-hosted object decide; the
// object is destroyed once the host agrees.
func (r *Router) deleteObject(s *session, f *wire.Frame) {
	o, ok := r.target(s, f)
	if !ok {
		return
	}
	if o.routerHosted() || o.host == s {
		s.reply(f, wire.StatusOK, wire.PropArray{})
		r.destroy(o)
		return
	}
	r.forward(s, f, o, wire.MsgObjectDeleted, wire.PropArray{}, func(conf wire.Status, props wire.PropArray) (wire.Status, wire.PropArray) {
		if conf == wire.StatusOK {
			r.destroy(o)
		}
		return conf, props
	})
}

// writable reports whether tag of o may be written. The host of an
// object may also write its read-only properties.
func writable(o *object, tag wire.Tag, owner bool) wire.Status {
	if registryTag(tag) {
		return wire.StatusReadOnly
	}
	if owner {
		return wire.StatusOK
	}
	if tag.IsReadOnly() {
		return wire.StatusReadOnly
	}
	if cur, ok := o.props.Get(tag); ok && cur.Tag.IsReadOnly() {
		return wire.StatusReadOnly
	}
	return wire.StatusOK
}

// applySet writes props into the table of o and queues the changes. The
// results hold the stored values and an error property per refusal.
func (r *Router) applySet(o *object, props wire.PropArray, owner bool) (wire.PropArray, wire.Status) {
	var results, accepted wire.PropArray
	first := wire.StatusOK
	for _, p := range props.Props() {
		if st := writable(o, p.Tag, owner); st != wire.StatusOK {
			results.Set(wire.NewError(p.Tag, st))
			if first == wire.StatusOK {
				first = st
			}
			continue
		}
		accepted.Set(p)
		results.Set(p)
	}
	r.notify(o, o.props.Apply(accepted))
	return results, outcome(accepted.Len(), props.Len(), first)
}

func (r *Router) setProperties(s *session, f *wire.Frame) {
	o, ok := r.target(s, f)
	if !ok {
		return
	}
	if f.Payload.IsEmpty() {
		s.reply(f, wire.StatusNoChanges, wire.PropArray{})
		return
	}
	if o.routerHosted() || o.host == s {
		results, status := r.applySet(o, f.Payload, o.host == s)
		s.reply(f, status, results)
		return
	}

	sent := f.Payload
	r.forward(s, f, o, wire.MsgSetPropertiesReq, sent, func(status wire.Status, props wire.PropArray) (wire.Status, wire.PropArray) {
		if status != wire.StatusOK && status != wire.StatusPartialSuccess {
			return status, props
		}
		accepted := props
		if accepted.IsEmpty() && status == wire.StatusOK {
			accepted = sent
		}
		r.notify(o, o.props.Apply(accepted))
		return status, props
	})
}

// readProps answers a getProperties for o from the registry.
func readProps(o *object, tags wire.TagArray) (wire.PropArray, wire.Status) {
	if len(tags) == 0 {
		return o.row(), wire.StatusOK
	}
	var out wire.PropArray
	missing := 0
	for _, t := range tags {
		p, ok := o.lookup(t)
		if !ok {
			p = wire.NewError(t, wire.StatusNotFound)
			missing++
		}
		out.Set(p)
	}
	return out, outcome(len(tags)-missing, len(tags), wire.StatusNotFound)
}

func (r *Router) getProperties(s *session, f *wire.Frame) {
	o, ok := r.target(s, f)
	if !ok {
		return
	}
	tags := f.Payload.Tags()

	var forwarded wire.PropArray
	for _, p := range f.Payload.Props() {
		if !registryTag(p.Tag) {
			forwarded.Set(p)
		}
	}
	if o.routerHosted() || o.host == s || (len(tags) > 0 && forwarded.IsEmpty()) {
		props, status := readProps(o, tags)
		s.reply(f, status, props)
		return
	}

	r.forward(s, f, o, wire.MsgGetPropertiesReq, forwarded, func(status wire.Status, props wire.PropArray) (wire.Status, wire.PropArray) {
		if status != wire.StatusOK && status != wire.StatusPartialSuccess {
			return status, props
		}
		out := props.Clone()
		base := o.baseProps()
		if len(tags) == 0 {
			out.Merge(base)
		}
		for _, t := range tags {
			if p, ok := base.Lookup(t); ok {
				out.Set(p)
			}
		}
		if out.HasErrors() {
			return wire.StatusPartialSuccess, out
		}
		return wire.StatusOK, out
	})
}

func (r *Router) createProperty(s *session, f *wire.Frame) {
	o, ok := r.target(s, f)
	if !ok {
		return
	}
	if !o.routerHosted() && o.host != s {
		s.reply(f, wire.StatusRefused, wire.PropArray{})
		return
	}
	if f.Payload.IsEmpty() {
		s.reply(f, wire.StatusNoChanges, wire.PropArray{})
		return
	}

	var results, added wire.PropArray
	first := wire.StatusOK
	for _, p := range f.Payload.Props() {
		if registryTag(p.Tag) {
			results.Set(wire.NewError(p.Tag, wire.StatusReadOnly))
			if first == wire.StatusOK {
				first = wire.StatusReadOnly
			}
			continue
		}
		o.props.Set(p)
		added.Set(p)
		results.Set(p)
	}
	s.reply(f, outcome(added.Len(), f.Payload.Len(), first), results)
	if !added.IsEmpty() {
		r.fanout(wire.NewFrame(wire.MsgPropertyCreated, o.addr, o.bcast, added), wire.EmptyAddr)
	}
}

// removeProps drops tags from the table of o.
func removeProps(o *object, tags wire.TagArray) wire.Status {
	removed := 0
	for _, t := range tags {
		if o.props.Remove(t) {
			removed++
		}
	}
	return outcome(removed, len(tags), wire.StatusNotFound)
}

func (r *Router) deleteProperty(s *session, f *wire.Frame) {
	o, ok := r.target(s, f)
	if !ok {
		return
	}
	tags := f.Payload.Tags()
	if len(tags) == 0 {
		s.reply(f, wire.StatusNoChanges, wire.PropArray{})
		return
	}
	for _, t := range tags {
		if registryTag(t) {
			s.reply(f, wire.StatusReadOnly, wire.PropArray{})
			return
		}
	}

	if o.routerHosted() || o.host == s {
		s.reply(f, removeProps(o, tags), wire.PropArray{})
		return
	}
	r.forward(s, f, o, wire.MsgPropertyDeleted, f.Payload, func(status wire.Status, props wire.PropArray) (wire.Status, wire.PropArray) {
		if status == wire.StatusOK {
			removeProps(o, tags)
		}
		return status, props
	})
}

// group returns the object whose group is addr; nil with ok set means
// the announcement group.
func (r *Router) group(addr wire.Addr) (o *object, ok bool) {
	if addr == wire.AnnounceAddr {
		return nil, true
	}
	o = r.objects.byGroup(addr)
	return o, o != nil
}

func (r *Router) joinGroup(s *session, f *wire.Frame) {
	g := f.Destination
	o, ok := r.group(g)
	if !ok {
		s.reply(f, wire.StatusNotFound, wire.PropArray{})
		return
	}
	if o != nil && !r.reachable(s, o) {
		s.reply(f, wire.StatusUnauthorized, wire.PropArray{})
		return
	}

	joined := r.groups.Join(g, s.Addr())
	s.reply(f, wire.StatusOK, wire.PropArray{})
	if !joined {
		return
	}
	s.fc.LogState(log.StateEntityGroup, "", "JOINED", g.String())
	if g != wire.AnnounceAddr {
		r.fanout(wire.NewFrame(wire.MsgJoined, s.Addr(), g, wire.PropArray{}), s.Addr())
	}
}

func (r *Router) leaveGroup(s *session, f *wire.Frame) {
	g := f.Destination
	if !r.groups.Leave(g, s.Addr()) {
		s.reply(f, wire.StatusNotFound, wire.PropArray{})
		return
	}
	s.reply(f, wire.StatusOK, wire.PropArray{})
	s.fc.LogState(log.StateEntityGroup, "JOINED", "LEFT", g.String())
	if g != wire.AnnounceAddr {
		r.fanout(wire.NewFrame(wire.MsgLeft, s.Addr(), g, wire.PropArray{}), s.Addr())
	}
}

// custom delivers a custom message. Sent to a group it fans out as
// customMsgReceived without token; sent to a service-hosted object it is
// forwarded to the host and answered by it.
func (r *Router) custom(s *session, f *wire.Frame) {
	if o, ok := r.group(f.Destination); ok {
		if o != nil && !r.reachable(s, o) {
			s.reply(f, wire.StatusUnauthorized, wire.PropArray{})
			return
		}
		r.fanout(&wire.Frame{
			Type:        wire.MsgCustomMsgReceived,
			Source:      s.Addr(),
			Destination: f.Destination,
			Payload:     f.Payload,
		}, s.Addr())
		s.reply(f, wire.StatusOK, wire.PropArray{})
		return
	}

	o, ok := r.target(s, f)
	if !ok {
		return
	}
	if o.routerHosted() {
		s.reply(f, wire.StatusNotImpl, wire.PropArray{})
		return
	}
	r.forward(s, f, o, wire.MsgCustomMsgReceived, f.Payload, nil)
}

func (r *Router) saveChanges(s *session, f *wire.Frame) {
	if r.snapshot == nil {
		s.reply(f, wire.StatusNotImpl, wire.PropArray{})
		return
	}
	if err := r.save(); err != nil {
		r.logger.Error("saving snapshot failed", "path", r.snapshot.Path(), "error", err)
		s.reply(f, wire.StatusFailed, wire.PropArray{})
		return
	}
	s.reply(f, wire.StatusOK, wire.PropArray{})
}

// configure applies per-session options. INDICATION_TIMEOUT, in
// milliseconds, bounds how long the router waits for the session to
// answer forwarded requests.
func (r *Router) configure(s *session, f *wire.Frame) {
	var results wire.PropArray
	applied := 0
	first := wire.StatusOK
	for _, p := range f.Payload.Props() {
		st := wire.StatusNotImpl
		if p.Tag.SameID(wire.TagIndicationTimeout) {
			st = wire.StatusUnsupported
			if ms, ok := p.AsInt(); ok && ms > 0 {
				s.req.SetTimeout(time.Duration(ms) * time.Millisecond)
				st = wire.StatusOK
			}
		}
		if st != wire.StatusOK {
			results.Set(wire.NewError(p.Tag, st))
			if first == wire.StatusOK {
				first = st
			}
			continue
		}
		results.Set(p)
		applied++
	}
	s.reply(f, outcome(applied, f.Payload.Len(), first), results)
}
