package radicale

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/calmirror/calmirror/internal/config"
	"github.com/emersion/go-vcard"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/carddav"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Contact is a minimal address book entry.
type Contact struct {
	FirstName    string
	LastName     string
	Email        string
	Phone        string
	Organization string
}

// AddressBookInfo describes an address book collection on the server.
type AddressBookInfo struct {
	Name string
	Path string
}

// ContactsClient stores contacts in Radicale over CardDAV.
type ContactsClient struct {
	baseUrl            string
	defaultAddressBook string
	httpClient         webdav.HTTPClient

	mu        sync.Mutex
	dav       *carddav.Client
	pathCache map[string]string
}

func NewContactsClient(cfg config.Radicale) *ContactsClient {
	httpClient := webdav.HTTPClientWithBasicAuth(&http.Client{Timeout: 30 * time.Second}, cfg.Username, cfg.Password)
	return &ContactsClient{
		baseUrl:            cfg.Url,
		defaultAddressBook: cfg.AddressBook,
		httpClient:         httpClient,
		pathCache:          map[string]string{},
	}
}

func (c *ContactsClient) connect() (*carddav.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dav != nil {
		return c.dav, nil
	}
	dav, err := carddav.NewClient(c.httpClient, c.baseUrl)
	if err != nil {
		return nil, fmt.Errorf("could not connect to Radicale at %s: %w", c.baseUrl, err)
	}
	c.dav = dav
	return dav, nil
}

func (c *ContactsClient) resolveAddressBook(ctx context.Context, name string) (string, error) {
	c.mu.Lock()
	if path, ok := c.pathCache[name]; ok {
		c.mu.Unlock()
		return path, nil
	}
	c.mu.Unlock()

	dav, err := c.connect()
	if err != nil {
		return "", err
	}
	principal, err := dav.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return "", fmt.Errorf("could not find Radicale principal: %w", err)
	}
	homeSet, err := dav.FindAddressBookHomeSet(ctx, principal)
	if err != nil {
		return "", fmt.Errorf("could not find Radicale address book home set: %w", err)
	}
	books, err := dav.FindAddressBooks(ctx, homeSet)
	if err != nil {
		return "", fmt.Errorf("could not list Radicale address books: %w", err)
	}
	for _, book := range books {
		if book.Name == name || lastPathSegment(book.Path) == name {
			c.mu.Lock()
			c.pathCache[name] = book.Path
			c.mu.Unlock()
			return book.Path, nil
		}
	}
	return "", fmt.Errorf("address book %q not found in Radicale", name)
}

// ListAddressBooks returns all address book collections of the principal.
func (c *ContactsClient) ListAddressBooks(ctx context.Context) ([]AddressBookInfo, error) {
	dav, err := c.connect()
	if err != nil {
		return nil, err
	}
	principal, err := dav.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not find Radicale principal: %w", err)
	}
	homeSet, err := dav.FindAddressBookHomeSet(ctx, principal)
	if err != nil {
		return nil, fmt.Errorf("could not find Radicale address book home set: %w", err)
	}
	books, err := dav.FindAddressBooks(ctx, homeSet)
	if err != nil {
		return nil, fmt.Errorf("could not list Radicale address books: %w", err)
	}

	infos := make([]AddressBookInfo, 0, len(books))
	for _, book := range books {
		infos = append(infos, AddressBookInfo{Name: book.Name, Path: book.Path})
	}
	return infos, nil
}

// CreateContact stores a new vCard in the named address book and returns its
// UID.
func (c *ContactsClient) CreateContact(ctx context.Context, addressBookName string, contact Contact) (string, error) {
	if addressBookName == "" {
		addressBookName = c.defaultAddressBook
	}
	dav, err := c.connect()
	if err != nil {
		return "", err
	}
	bookPath, err := c.resolveAddressBook(ctx, addressBookName)
	if err != nil {
		return "", err
	}

	uid := uuid.New().String()
	card := contactToVCard(contact, uid)

	path := bookPath
	if !strings.HasSuffix(path, "/") {
		path += "/"
	}
	path += uid + ".vcf"

	if _, err := dav.PutAddressObject(ctx, path, card); err != nil {
		return "", fmt.Errorf("could not store contact in Radicale: %w", err)
	}
	log.Infof("Stored contact %q in Radicale address book %q", uid, addressBookName)
	return uid, nil
}

func contactToVCard(contact Contact, uid string) vcard.Card {
	card := vcard.Card{}
	card.SetValue(vcard.FieldUID, uid)
	card.SetValue(vcard.FieldFormattedName, strings.TrimSpace(contact.FirstName+" "+contact.LastName))
	card.SetValue(vcard.FieldName, contact.LastName+";"+contact.FirstName+";;;")

	if contact.Email != "" {
		card.Add(vcard.FieldEmail, &vcard.Field{
			Value:  contact.Email,
			Params: vcard.Params{vcard.ParamType: {"INTERNET"}},
		})
	}
	if contact.Phone != "" {
		card.Add(vcard.FieldTelephone, &vcard.Field{
			Value:  contact.Phone,
			Params: vcard.Params{vcard.ParamType: {"CELL"}},
		})
	}
	if contact.Organization != "" {
		card.SetValue(vcard.FieldOrganization, contact.Organization)
	}

	vcard.ToV4(card)
	return card
}
