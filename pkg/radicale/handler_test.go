package radicale

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type contactsStub struct {
	books    []AddressBookInfo
	booksErr error

	createdIn      string
	createdContact Contact
}

func (s *contactsStub) ListAddressBooks(ctx context.Context) ([]AddressBookInfo, error) {
	return s.books, s.booksErr
}

func (s *contactsStub) CreateContact(ctx context.Context, addressBookName string, contact Contact) (string, error) {
	s.createdIn = addressBookName
	s.createdContact = contact
	return "contact-uid-1", nil
}

func TestHandler_ListAddressBooks(t *testing.T) {
	t.Run("returns the address book collections", func(t *testing.T) {
		// given
		contacts := &contactsStub{books: []AddressBookInfo{
			{Name: "Contacts", Path: "/admin/contacts/"},
			{Name: "Work", Path: "/admin/work/"},
		}}
		handler := NewHandler(nil, contacts)

		// when
		w := httptest.NewRecorder()
		handler.ListAddressBooks(w, httptest.NewRequest("GET", "/api/radicale/addressbooks", nil))

		// then
		assert.Equal(t, 200, w.Code)
		var dtos []AddressBookDto
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &dtos))
		require.Len(t, dtos, 2)
		assert.Equal(t, "Contacts", dtos[0].Name)
		assert.Equal(t, "/admin/contacts/", dtos[0].Path)
	})

	t.Run("reports server failures", func(t *testing.T) {
		contacts := &contactsStub{booksErr: errors.New("radicale is down")}
		handler := NewHandler(nil, contacts)

		w := httptest.NewRecorder()
		handler.ListAddressBooks(w, httptest.NewRequest("GET", "/api/radicale/addressbooks", nil))

		assert.Equal(t, 500, w.Code)
	})
}

func TestHandler_CreateContact(t *testing.T) {
	t.Run("stores the contact in the named address book", func(t *testing.T) {
		// given
		contacts := &contactsStub{}
		handler := NewHandler(nil, contacts)
		body := `{"firstName":"Ada","lastName":"Lovelace","email":"ada@example.com"}`

		// when
		req := mux.SetURLVars(
			httptest.NewRequest("POST", "/api/radicale/addressbooks/work/contacts", strings.NewReader(body)),
			map[string]string{"addressBookName": "work"},
		)
		w := httptest.NewRecorder()
		handler.CreateContact(w, req)

		// then
		assert.Equal(t, 201, w.Code)
		assert.Equal(t, "work", contacts.createdIn)
		assert.Equal(t, "Ada", contacts.createdContact.FirstName)
		assert.Equal(t, "ada@example.com", contacts.createdContact.Email)

		var response map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, "contact-uid-1", response["contactId"])
	})

	t.Run("rejects a contact without a name", func(t *testing.T) {
		contacts := &contactsStub{}
		handler := NewHandler(nil, contacts)

		req := mux.SetURLVars(
			httptest.NewRequest("POST", "/api/radicale/addressbooks/work/contacts", strings.NewReader(`{"email":"x@example.com"}`)),
			map[string]string{"addressBookName": "work"},
		)
		w := httptest.NewRecorder()
		handler.CreateContact(w, req)

		assert.Equal(t, 400, w.Code)
		assert.Empty(t, contacts.createdIn)
	})
}
