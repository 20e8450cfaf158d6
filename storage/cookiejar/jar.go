// Package cookiejar provides an http.CookieJar persisted to a JSON file,
// so a session survives between runs of the CLI.
package cookiejar

import (
	"encoding/json"
	"net/http"
	httpjar "net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/net/publicsuffix"
)

var nowFunc = time.Now // mockable

// entry is a cookie as set by a response from URL. Values are kept opaque.
// Entries are identified by host, domain, path and name, like the cookies of a browser.
type entry struct {
	URL      string        `json:"url"`
	Name     string        `json:"name"`
	Value    string        `json:"value"`
	Path     string        `json:"path,omitempty"`
	Domain   string        `json:"domain,omitempty"`
	Expires  time.Time     `json:"expires,omitempty"`
	Secure   bool          `json:"secure,omitempty"`
	HttpOnly bool          `json:"http_only,omitempty"`
	SameSite http.SameSite `json:"same_site,omitempty"`
}

func (e entry) key() string {
	host := e.URL
	if u, err := url.Parse(e.URL); err == nil {
		host = u.Host
	}
	return host + "|" + e.Domain + "|" + e.Path + "|" + e.Name
}

func (e entry) expired(now time.Time) bool {
	return !e.Expires.IsZero() && !e.Expires.After(now)
}

func (e entry) cookie() *http.Cookie {
	return &http.Cookie{
		Name:     e.Name,
		Value:    e.Value,
		Path:     e.Path,
		Domain:   e.Domain,
		Expires:  e.Expires,
		Secure:   e.Secure,
		HttpOnly: e.HttpOnly,
		SameSite: e.SameSite,
	}
}

// Jar is an http.CookieJar saving its cookies to a file after every change.
type Jar struct {
	path string

	mu      sync.Mutex
	jar     *httpjar.Jar
	entries map[string]entry
	err     error // last save error
}

var _ http.CookieJar = (*Jar)(nil)

// Open loads the jar saved at path. A missing file is an empty jar.
func Open(path string) (*Jar, error) {
	j := &Jar{path: path}
	if err := j.reset(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return j, nil
		}
		return nil, errors.Wrap(err, "reading cookie jar")
	}
	var entries []entry
	if err = json.Unmarshal(data, &entries); err != nil {
		return nil, errors.Wrap(err, "decoding cookie jar")
	}

	now := nowFunc()
	for _, e := range entries {
		if e.expired(now) {
			continue
		}
		u, err := url.Parse(e.URL)
		if err != nil {
			continue
		}
		j.jar.SetCookies(u, []*http.Cookie{e.cookie()})
		j.entries[e.key()] = e
	}
	return j, nil
}

func (j *Jar) reset() error {
	jar, err := httpjar.New(&httpjar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return errors.Wrap(err, "creating cookie jar")
	}
	j.jar = jar
	j.entries = make(map[string]entry)
	return nil
}

func (j *Jar) Path() string {
	return j.path
}

func (j *Jar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.jar.Cookies(u)
}

func (j *Jar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.jar.SetCookies(u, cookies)

	origin := (&url.URL{Scheme: u.Scheme, Host: u.Host, Path: u.Path}).String()
	now := nowFunc()
	for _, c := range cookies {
		e := entry{
			URL:      origin,
			Name:     c.Name,
			Value:    c.Value,
			Path:     c.Path,
			Domain:   c.Domain,
			Expires:  c.Expires,
			Secure:   c.Secure,
			HttpOnly: c.HttpOnly,
			SameSite: c.SameSite,
		}
		switch {
		case c.MaxAge < 0:
			e.Expires = now
		case c.MaxAge > 0:
			e.Expires = now.Add(time.Duration(c.MaxAge) * time.Second)
		}
		if e.expired(now) {
			delete(j.entries, e.key())
			continue
		}
		j.entries[e.key()] = e
	}
	j.err = j.save()
}

// Err returns the error of the last save, if any.
// http.CookieJar.SetCookies has no way to report it.
func (j *Jar) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

// Clear forgets every cookie and removes the file.
func (j *Jar) Clear() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.reset(); err != nil {
		return err
	}
	j.err = nil
	if err := os.Remove(j.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "removing cookie jar")
	}
	return nil
}

// j.mu must be held.
func (j *Jar) save() error {
	entries := make([]entry, 0, len(j.entries))
	for _, e := range j.entries {
		entries = append(entries, e)
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encoding cookie jar")
	}
	if err = os.MkdirAll(filepath.Dir(j.path), 0700); err != nil {
		return errors.Wrap(err, "creating cookie jar directory")
	}
	return errors.Wrap(os.WriteFile(j.path, data, 0600), "writing cookie jar")
}
