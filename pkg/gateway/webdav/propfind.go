package webdav

import (
	"encoding/xml"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gatefs/gatefs/pkg/gateway/fs"
)

// davTimeFormat is the RFC 1123 form getlastmodified requires.
const davTimeFormat = "Mon, 02 Jan 2006 15:04:05 GMT"

type multistatus struct {
	XMLName   xml.Name   `xml:"D:multistatus"`
	XMLNS     string     `xml:"xmlns:D,attr"`
	Responses []response `xml:"D:response"`
}

type response struct {
	Href     string   `xml:"D:href"`
	Propstat propstat `xml:"D:propstat"`
}

type propstat struct {
	Prop   prop   `xml:"D:prop"`
	Status string `xml:"D:status"`
}

type prop struct {
	DisplayName   string        `xml:"D:displayname"`
	ResourceType  resourceType  `xml:"D:resourcetype"`
	ContentLength *int64        `xml:"D:getcontentlength,omitempty"`
	LastModified  string        `xml:"D:getlastmodified,omitempty"`
	ETag          string        `xml:"D:getetag,omitempty"`
	ContentType   string        `xml:"D:getcontenttype,omitempty"`
	SupportedLock supportedLock `xml:"D:supportedlock"`
}

type resourceType struct {
	Collection *struct{} `xml:"D:collection,omitempty"`
}

type supportedLock struct {
	Entries []lockEntry `xml:"D:lockentry"`
}

type lockEntry struct {
	Scope lockScope `xml:"D:lockscope"`
	Type  lockType  `xml:"D:locktype"`
}

type lockScope struct {
	Exclusive *struct{} `xml:"D:exclusive,omitempty"`
	Shared    *struct{} `xml:"D:shared,omitempty"`
}

type lockType struct {
	Write struct{} `xml:"D:write"`
}

func entryResponse(prefix string, e fs.Entry) response {
	href := prefix + escapeHref(e.Path)

	p := prop{
		DisplayName: e.Name,
		SupportedLock: supportedLock{Entries: []lockEntry{
			{Scope: lockScope{Exclusive: &struct{}{}}},
			{Scope: lockScope{Shared: &struct{}{}}},
		}},
	}
	if e.IsDirectory {
		p.ResourceType.Collection = &struct{}{}
	} else {
		size := e.Size
		p.ContentLength = &size
		p.ContentType = e.ContentType
		if e.ETag != "" {
			p.ETag = `"` + e.ETag + `"`
		}
	}
	if !e.Modified.IsZero() {
		p.LastModified = e.Modified.UTC().Format(davTimeFormat)
	}

	return response{
		Href:     href,
		Propstat: propstat{Prop: p, Status: "HTTP/1.1 200 OK"},
	}
}

func escapeHref(p string) string {
	u := url.URL{Path: p}
	return u.EscapedPath()
}

func writeMultistatus(w http.ResponseWriter, ms *multistatus) {
	ms.XMLNS = "DAV:"
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(http.StatusMultiStatus)
	w.Write([]byte(xml.Header))
	enc := xml.NewEncoder(w)
	enc.Encode(ms)
}

// lockDiscovery renders the prop/lockdiscovery body for LOCK responses.
type lockDiscoveryProp struct {
	XMLName       xml.Name      `xml:"D:prop"`
	XMLNS         string        `xml:"xmlns:D,attr"`
	LockDiscovery lockDiscovery `xml:"D:lockdiscovery"`
}

type lockDiscovery struct {
	Active activeLock `xml:"D:activelock"`
}

type activeLock struct {
	Scope     lockScope `xml:"D:lockscope"`
	Type      lockType  `xml:"D:locktype"`
	Depth     string    `xml:"D:depth"`
	Owner     string    `xml:"D:owner,omitempty"`
	Timeout   string    `xml:"D:timeout"`
	LockToken lockToken `xml:"D:locktoken"`
	LockRoot  lockRoot  `xml:"D:lockroot"`
}

type lockToken struct {
	Href string `xml:"D:href"`
}

type lockRoot struct {
	Href string `xml:"D:href"`
}

func writeLockResponse(w http.ResponseWriter, prefix string, lock *Lock, status int) {
	depth := "0"
	if lock.Depth == depthInfinity {
		depth = "infinity"
	}
	scope := lockScope{Shared: &struct{}{}}
	if lock.Exclusive {
		scope = lockScope{Exclusive: &struct{}{}}
	}

	body := lockDiscoveryProp{
		XMLNS: "DAV:",
		LockDiscovery: lockDiscovery{Active: activeLock{
			Scope:     scope,
			Depth:     depth,
			Owner:     lock.Owner,
			Timeout:   "Second-" + formatSeconds(time.Until(lock.ExpiresAt)),
			LockToken: lockToken{Href: lock.Token},
			LockRoot:  lockRoot{Href: prefix + escapeHref(lock.Path)},
		}},
	}

	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.Header().Set("Lock-Token", "<"+lock.Token+">")
	w.WriteHeader(status)
	w.Write([]byte(xml.Header))
	enc := xml.NewEncoder(w)
	enc.Encode(body)
}

func formatSeconds(d time.Duration) string {
	secs := int64(d.Round(time.Second).Seconds())
	if secs < 0 {
		secs = 0
	}
	return strconv.FormatInt(secs, 10)
}
