package upstream

import (
	"context"
	"fmt"
	"time"

	"github.com/proksi-dns/droute/internal/cache"
	"github.com/proksi-dns/droute/internal/dnsmsg"
)

// Client is a single-upstream DNS transport: send one query, await one
// response. UDP, DoT, and DoH clients (internal/clientpool) all implement
// this so a Leaf can be built over any of them.
type Client interface {
	Send(ctx context.Context, reqBytes []byte) ([]byte, error)
}

// Leaf is a client-pool-backed resolver with a response cache in front of
// it (spec §4.2). It owns both its client and its cache; a Hybrid never
// owns a Leaf, only references its label.
type Leaf struct {
	Label   string
	Client  Client
	Cache   *cache.TTLCache[dnsmsg.Fingerprint, dnsmsg.Packet]
	Timeout time.Duration
}

// NewLeaf constructs a Leaf with the given cache capacity and policy.
func NewLeaf(label string, client Client, capacity int, policy cache.Policy, timeout time.Duration) *Leaf {
	return &Leaf{
		Label:   label,
		Client:  client,
		Cache:   cache.New[dnsmsg.Fingerprint, dnsmsg.Packet](capacity, policy),
		Timeout: timeout,
	}
}

func (l *Leaf) isUpstream() {}

// Resolve implements the leaf algorithm of spec §4.2: cache lookup first,
// cloning and re-stamping the cached template on a hit; on miss or
// expiry, send through the client pool, validate, cache if cacheable, and
// return the upstream's raw bytes with the request's transaction id patched
// in, so the id is right even when the upstream does not echo it.
func (l *Leaf) Resolve(ctx context.Context, req dnsmsg.Packet, reqBytes []byte) ([]byte, error) {
	fp, ok := req.QuestionFingerprint()
	if !ok {
		return nil, fmt.Errorf("%w: request has no question", ErrMalformedResponse)
	}

	if cached, hit, _ := l.Cache.Get(fp); hit {
		resp := cached.WithTransactionID(req.Header.ID).WithQuestions(req.Questions)
		b, err := resp.Marshal()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		return b, nil
	}

	sendCtx := ctx
	var cancel context.CancelFunc
	if l.Timeout > 0 {
		sendCtx, cancel = context.WithTimeout(ctx, l.Timeout)
		defer cancel()
	}

	respBytes, err := l.Client.Send(sendCtx, reqBytes)
	if err != nil {
		if sendCtx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return nil, &ClientError{Label: l.Label, Detail: err}
	}

	respPkt, err := dnsmsg.ParsePacket(respBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if err := validateResponse(req, respPkt); err != nil {
		return nil, err
	}

	entryType, ttl := cacheDecision(respPkt, l.Cache.NegativeFloor(), l.Cache.ServFailTTL())
	if ttl > 0 {
		l.Cache.Set(fp, respPkt.WithTransactionID(0), ttl, entryType)
	}

	return dnsmsg.PatchTransactionID(respBytes, req.Header.ID), nil
}

func validateResponse(req, resp dnsmsg.Packet) error {
	reqFP, ok := req.QuestionFingerprint()
	if !ok {
		return fmt.Errorf("%w: request has no question", ErrMalformedResponse)
	}
	respFP, ok := resp.QuestionFingerprint()
	if !ok || respFP != reqFP {
		return fmt.Errorf("%w: response question does not match request (possible cache-poisoning attempt)", ErrMalformedResponse)
	}
	return nil
}

// cacheDecision applies the RFC 2308 negative-caching policy from spec
// §4.2: NXDOMAIN/empty-NOERROR responses are cached using the SOA MINIMUM
// when present, else negativeFloor; SERVFAIL is cached briefly at
// servfailTTL; positive answers use the minimum answer TTL and are not
// cached at all when that TTL is zero.
func cacheDecision(resp dnsmsg.Packet, negativeFloor, servfailTTL time.Duration) (cache.EntryType, time.Duration) {
	rcode := dnsmsg.RCodeFromFlags(resp.Header.Flags)
	switch rcode {
	case dnsmsg.RCodeServFail:
		return cache.ServFail, servfailTTL
	case dnsmsg.RCodeNXDomain:
		if min, ok := resp.SOAMinimum(); ok {
			return cache.NXDomain, time.Duration(min) * time.Second
		}
		return cache.NXDomain, negativeFloor
	case dnsmsg.RCodeNoError:
		if len(resp.Answers) == 0 {
			if min, ok := resp.SOAMinimum(); ok {
				return cache.NoData, time.Duration(min) * time.Second
			}
			return cache.NoData, negativeFloor
		}
		ttl, ok := resp.MinAnswerTTL()
		if !ok || ttl == 0 {
			return cache.Positive, 0
		}
		return cache.Positive, time.Duration(ttl) * time.Second
	default:
		return cache.Positive, 0
	}
}
