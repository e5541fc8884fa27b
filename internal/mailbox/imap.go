package mailbox

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"sort"
	"time"

	"github.com/emersion/go-imap"
	sortthread "github.com/emersion/go-imap-sortthread"
	"github.com/emersion/go-imap/client"
)

const defaultIMAPPort = "993"

// IMAPDialer opens TLS IMAP sessions.
type IMAPDialer struct {
	Timeout time.Duration
}

// Dial logs in and selects the account's folder.
func (d IMAPDialer) Dial(ctx context.Context, acct Account) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	host, port, err := net.SplitHostPort(acct.Server)
	if err != nil {
		host, port = acct.Server, defaultIMAPPort
	}
	addr := net.JoinHostPort(host, port)

	c, err := client.DialWithDialerTLS(&net.Dialer{Timeout: d.Timeout}, addr, &tls.Config{ServerName: host})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	c.Timeout = d.Timeout

	if err := c.Login(acct.Address, acct.Password); err != nil {
		c.Terminate()
		return nil, fmt.Errorf("login %s: %w", acct.Address, err)
	}
	folder := acct.Folder
	if folder == "" {
		folder = "INBOX"
	}
	if _, err := c.Select(folder, false); err != nil {
		c.Logout()
		return nil, fmt.Errorf("select %s: %w", folder, err)
	}

	sc := sortthread.NewSortClient(c)
	canSort, err := sc.SupportSort()
	if err != nil {
		canSort = false
	}
	return &imapSession{c: c, sort: sc, canSort: canSort}, nil
}

type imapSession struct {
	c       *client.Client
	sort    *sortthread.SortClient
	canSort bool
}

func (s *imapSession) FetchUnread(ctx context.Context) ([]RawMessage, bool, error) {
	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}

	var (
		uids []uint32
		err  error
	)
	if s.canSort {
		uids, err = s.sort.UidSort([]sortthread.SortCriterion{{Field: sortthread.SortDate, Reverse: true}}, criteria)
	} else {
		uids, err = s.c.UidSearch(criteria)
		descendingUIDs(uids)
	}
	if err != nil {
		return nil, s.canSort, fmt.Errorf("search unseen: %w", err)
	}
	if len(uids) == 0 {
		return nil, s.canSort, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, s.canSort, err
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchUid, imap.FetchInternalDate, section.FetchItem()}

	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- s.c.UidFetch(seqset, items, messages)
	}()

	byUID := make(map[uint32]RawMessage, len(uids))
	for msg := range messages {
		r := msg.GetBody(section)
		if r == nil {
			continue
		}
		data, err := io.ReadAll(r)
		if err != nil {
			continue
		}
		byUID[msg.Uid] = RawMessage{UID: msg.Uid, Raw: data, Arrived: msg.InternalDate}
	}
	if err := <-done; err != nil {
		return nil, s.canSort, fmt.Errorf("fetch: %w", err)
	}

	// FETCH replies come back in mailbox order; keep the search order.
	out := make([]RawMessage, 0, len(byUID))
	for _, uid := range uids {
		if m, ok := byUID[uid]; ok {
			out = append(out, m)
		}
	}
	return out, s.canSort, nil
}

func (s *imapSession) store(uid uint32, op imap.FlagsOp) error {
	seqset := new(imap.SeqSet)
	seqset.AddNum(uid)
	return s.c.UidStore(seqset, imap.FormatFlagsOp(op, true), []interface{}{imap.SeenFlag}, nil)
}

func (s *imapSession) MarkRead(_ context.Context, uid uint32) error {
	return s.store(uid, imap.AddFlags)
}

func (s *imapSession) MarkUnread(_ context.Context, uid uint32) error {
	return s.store(uid, imap.RemoveFlags)
}

func (s *imapSession) Noop() error {
	return s.c.Noop()
}

func (s *imapSession) Close() error {
	return s.c.Logout()
}

func (s *imapSession) Terminate() error {
	return s.c.Terminate()
}

// descendingUIDs orders search results highest uid first, the closest
// stand-in for newest first without SORT.
func descendingUIDs(uids []uint32) {
	sort.Slice(uids, func(i, j int) bool { return uids[i] > uids[j] })
}
