package eni_test

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"testing"

	"eni-go/internal/eni"
	"eni-go/internal/protocol"
	"eni-go/internal/testutil"
)

// field renders <tag>value</tag>.
func field(tag, value string) string {
	return fmt.Sprintf("<%s>%s</%s>", tag, value, tag)
}

// request renders a request document for command with the given fields and
// optional payload.
func request(command, user string, data []byte, fields ...string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="ISO-8859-1"?>`)
	fmt.Fprintf(&b, `<request command="%s"`, command)
	if user != "" {
		fmt.Fprintf(&b, ` user-name="%s"`, user)
	}
	fmt.Fprintf(&b, "><%s>%s</%s>", command, strings.Join(fields, ""), command)
	if data != nil {
		b.WriteString(field("data", base64.StdEncoding.EncodeToString(data)))
	}
	b.WriteString("</request>")
	return b.String()
}

func objectFields(objectPath, typeID string) []string {
	return []string{field("object-path", objectPath), field("object-type", typeID)}
}

// client is one connection to a test gateway.
type client struct {
	t    *testing.T
	g    *testutil.TestGateway
	sess *eni.Session
}

func newClient(t *testing.T, g *testutil.TestGateway, user string) *client {
	t.Helper()
	c := &client{t: t, g: g, sess: g.Env.Sessions.Open()}
	t.Cleanup(func() { g.Env.Sessions.Close(c.sess) })
	if user != "" {
		c.sess.Bind(user)
	}
	return c
}

func (c *client) do(command string, data []byte, fields ...string) *protocol.Element {
	c.t.Helper()
	return c.g.Exchange(c.t, c.sess, request(command, "", data, fields...))
}

// ok sends a request that must succeed and returns the response fields.
func (c *client) ok(command string, data []byte, fields ...string) *protocol.Element {
	c.t.Helper()
	resp := c.do(command, data, fields...)
	if resp.Child("success") == nil {
		c.t.Fatalf("%s failed: code %d, %q\nlog:\n%s", command, errorCode(c.t, resp), errorText(resp), c.g.Logger)
	}
	return resp.Child(command)
}

// fails sends a request that must fail and returns the error code.
func (c *client) fails(command string, data []byte, fields ...string) int {
	c.t.Helper()
	resp := c.do(command, data, fields...)
	if resp.Child("success") != nil {
		c.t.Fatalf("%s succeeded, want an error", command)
	}
	return errorCode(c.t, resp)
}

func (c *client) create(objectPath, typeID string, data []byte) {
	c.t.Helper()
	c.ok("create-object", data, objectFields(objectPath, typeID)...)
}

func (c *client) checkOut(objectPath, typeID, comment string) {
	c.t.Helper()
	c.ok("check-out-object", nil, append(objectFields(objectPath, typeID), field("comment", comment))...)
}

func (c *client) checkIn(objectPath, typeID, comment string, data []byte) {
	c.t.Helper()
	c.ok("check-in-object", data, append(objectFields(objectPath, typeID), field("comment", comment))...)
}

func errorCode(t *testing.T, resp *protocol.Element) int {
	t.Helper()
	raw, ok := resp.Child("error").ChildText("error-code")
	if !ok {
		t.Fatalf("response carries no error code")
	}
	code, err := strconv.Atoi(raw)
	if err != nil {
		t.Fatalf("error-code %q: %v", raw, err)
	}
	return code
}

func errorText(resp *protocol.Element) string {
	text, _ := resp.Child("error").ChildText("error-text")
	return text
}

func text(e *protocol.Element, tag string) string {
	v, _ := e.ChildText(tag)
	return v
}

func payload(t *testing.T, resp *protocol.Element) []byte {
	t.Helper()
	data, err := protocol.DecodeData(resp.Child("data").Text)
	if err != nil {
		t.Fatalf("decoding payload: %v", err)
	}
	return data
}
