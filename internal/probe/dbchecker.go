package probe

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/hamed0406/sitewatch/internal/domain"
)

// DBChecker probes database daemons for existence only. It opens a raw
// socket and inspects the unauthenticated greeting (or sends the smallest
// credential-free request the protocol allows). No auth is ever completed
// and no query runs.
type DBChecker struct {
	Kind domain.MonitorType // mysql, postgres, mongodb or redis
	Cfg  Config
}

func (c *DBChecker) Check(ctx context.Context, site *domain.Site, now time.Time) domain.Result {
	cctx, cancel := context.WithTimeout(ctx, c.Cfg.DBTimeout)
	defer cancel()

	addr := net.JoinHostPort(site.DBHost, strconv.Itoa(site.DBPort))
	var d net.Dialer

	start := time.Now()
	conn, err := d.DialContext(cctx, "tcp", addr)
	if err != nil {
		_, msg := classifyErr(err)
		return down(now, 0, time.Since(start), msg)
	}
	defer conn.Close()
	if deadline, ok := cctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	var probeErr error
	switch c.Kind {
	case domain.MonitorRedis:
		probeErr = probeRedis(conn)
	case domain.MonitorMySQL:
		probeErr = probeMySQL(conn)
	case domain.MonitorPostgres:
		probeErr = probePostgres(conn)
	case domain.MonitorMongoDB:
		probeErr = probeMongo(conn)
	default:
		return down(now, 0, time.Since(start),
			failMsg(ClassProtocolMismatch, fmt.Sprintf("unsupported database kind %q", c.Kind)))
	}
	elapsed := time.Since(start)

	if probeErr != nil {
		if mismatch, ok := probeErr.(*mismatchError); ok {
			return down(now, 0, elapsed, failMsg(ClassProtocolMismatch, mismatch.detail))
		}
		_, msg := classifyErr(probeErr)
		return down(now, 0, elapsed, msg)
	}

	status, msg := c.Cfg.classifyLatency(fmt.Sprintf("%s reachable", c.Kind), elapsed)
	return up(now, status, 0, elapsed, msg)
}

type mismatchError struct{ detail string }

func (e *mismatchError) Error() string { return e.detail }

// probeRedis sends PING and accepts any well-formed RESP reply, including
// auth-required errors: a -NOAUTH reply is still a live Redis.
func probeRedis(conn net.Conn) error {
	if _, err := conn.Write([]byte("PING\r\n")); err != nil {
		return err
	}
	lead := make([]byte, 1)
	if _, err := io.ReadFull(conn, lead); err != nil {
		return err
	}
	switch lead[0] {
	case '+', '-', ':', '$', '*':
		return nil
	}
	return &mismatchError{detail: fmt.Sprintf("not a redis server (lead byte 0x%02x)", lead[0])}
}

// probeMySQL reads the server's initial handshake: a 4-byte packet header
// followed by the protocol version. 0x0a is the v10 handshake; 0xff is an
// error packet (host blocked, too many connections), which is still MySQL.
func probeMySQL(conn net.Conn) error {
	buf := make([]byte, 5)
	if _, err := io.ReadFull(conn, buf); err != nil {
		return err
	}
	switch buf[4] {
	case 0x0a, 0xff:
		return nil
	}
	return &mismatchError{detail: fmt.Sprintf("not a mysql server (protocol byte 0x%02x)", buf[4])}
}

// probePostgres sends an SSLRequest (the only startup message that needs no
// parameters) and expects the single-byte 'S', 'N' or 'E' answer only a
// Postgres backend produces.
func probePostgres(conn net.Conn) error {
	msg := []byte{0, 0, 0, 8, 0x04, 0xd2, 0x16, 0x2f}
	if _, err := conn.Write(msg); err != nil {
		return err
	}
	answer := make([]byte, 1)
	if _, err := io.ReadFull(conn, answer); err != nil {
		return err
	}
	switch answer[0] {
	case 'S', 'N', 'E':
		return nil
	}
	return &mismatchError{detail: fmt.Sprintf("not a postgres server (reply byte 0x%02x)", answer[0])}
}

// probeMongo sends a legacy OP_QUERY isMaster against admin.$cmd, which
// servers answer pre-auth, and checks the reply header for OP_REPLY.
func probeMongo(conn net.Conn) error {
	// {"ismaster": 1} as BSON
	doc := []byte{
		0x13, 0x00, 0x00, 0x00,
		0x10, 'i', 's', 'm', 'a', 's', 't', 'e', 'r', 0x00,
		0x01, 0x00, 0x00, 0x00,
		0x00,
	}

	var body bytes.Buffer
	binary.Write(&body, binary.LittleEndian, int32(0)) // flags
	body.WriteString("admin.$cmd")
	body.WriteByte(0)
	binary.Write(&body, binary.LittleEndian, int32(0)) // numberToSkip
	binary.Write(&body, binary.LittleEndian, int32(1)) // numberToReturn
	body.Write(doc)

	var msg bytes.Buffer
	binary.Write(&msg, binary.LittleEndian, int32(16+body.Len())) // messageLength
	binary.Write(&msg, binary.LittleEndian, int32(1))             // requestID
	binary.Write(&msg, binary.LittleEndian, int32(0))             // responseTo
	binary.Write(&msg, binary.LittleEndian, int32(2004))          // OP_QUERY
	msg.Write(body.Bytes())

	if _, err := conn.Write(msg.Bytes()); err != nil {
		return err
	}

	header := make([]byte, 16)
	if _, err := io.ReadFull(conn, header); err != nil {
		return err
	}
	length := int32(binary.LittleEndian.Uint32(header[0:4]))
	opCode := int32(binary.LittleEndian.Uint32(header[12:16]))
	if opCode != 1 || length < 16 || length > 16*1024*1024 {
		return &mismatchError{detail: fmt.Sprintf("not a mongodb server (opcode %d)", opCode)}
	}
	return nil
}
