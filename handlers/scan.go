package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kevinaaaquil/sharemybook/scan"
)

// ScanHandler routes a barcode read: ISBNs go to the catalog search, share
// codes start accepting the transaction.
type ScanHandler struct {
	Books        *BooksHandler
	Transactions *TransactionsHandler
}

type ScanRequest struct {
	Value string `json:"value"`
	Type  string `json:"type"`
}

func (h *ScanHandler) Scan(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
		return
	}
	format, err := scan.ParseFormat(req.Type)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := scan.Decode(req.Value, format)
	var de *scan.DecodeError
	if errors.As(err, &de) {
		writeError(w, http.StatusUnprocessableEntity, de.Error())
		return
	}
	if err != nil {
		http.Error(w, `{"error":"failed to decode scan"}`, http.StatusInternalServerError)
		return
	}

	switch res.Kind {
	case scan.KindISBN:
		h.Books.search(w, r, res.ISBN)
	case scan.KindShare:
		h.Transactions.Accept(w, r, res)
	}
}
