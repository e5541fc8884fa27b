package venue

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/vikasavnish/signalrelay/internal/signals"
)

// --- binance ---

type binanceAdapter struct {
	http httpCaller
	now  func() time.Time
}

func (a *binanceAdapter) Kind() Kind { return Binance }

func (a *binanceAdapter) PlaceOrder(ctx context.Context, creds Credentials, sig signals.TradeSignal) (Response, error) {
	q := url.Values{}
	q.Set("symbol", sig.Symbol)
	q.Set("side", strings.ToUpper(string(sig.Action)))
	q.Set("type", "MARKET")
	q.Set("quantity", sig.Quantity.String())
	q.Set("timestamp", strconv.FormatInt(a.now().UnixMilli(), 10))
	query := q.Encode()
	query += "&signature=" + signHex(creds.APISecret, query)

	return a.http.do(ctx, http.MethodPost, "/api/v3/order?"+query, nil, map[string]string{
		"X-MBX-APIKEY": creds.APIKey,
	})
}

// --- bybit ---

type bybitAdapter struct {
	http httpCaller
}

func (a *bybitAdapter) Kind() Kind { return Bybit }

func (a *bybitAdapter) PlaceOrder(ctx context.Context, creds Credentials, sig signals.TradeSignal) (Response, error) {
	body, err := json.Marshal(struct {
		Symbol      string      `json:"symbol"`
		Side        string      `json:"side"`
		OrderType   string      `json:"order_type"`
		Qty         json.Number `json:"qty"`
		TimeInForce string      `json:"time_in_force"`
	}{
		Symbol:      sig.Symbol,
		Side:        strings.ToUpper(string(sig.Action)),
		OrderType:   "Market",
		Qty:         json.Number(sig.Quantity.String()),
		TimeInForce: "GoodTillCancel",
	})
	if err != nil {
		return Response{}, err
	}
	return a.http.do(ctx, http.MethodPost, "/v2/private/order/create", body, map[string]string{
		"X-BYBIT-API-KEY": creds.APIKey,
	})
}

// --- kucoin ---

type kucoinAdapter struct {
	http httpCaller
	now  func() time.Time
}

func (a *kucoinAdapter) Kind() Kind { return KuCoin }

func (a *kucoinAdapter) PlaceOrder(ctx context.Context, creds Credentials, sig signals.TradeSignal) (Response, error) {
	const path = "/api/v1/orders"
	body, err := json.Marshal(struct {
		Symbol string `json:"symbol"`
		Side   string `json:"side"`
		Type   string `json:"type"`
		Size   string `json:"size"`
	}{
		Symbol: sig.Symbol,
		Side:   strings.ToLower(string(sig.Action)),
		Type:   "market",
		Size:   sig.Quantity.String(),
	})
	if err != nil {
		return Response{}, err
	}
	ts := strconv.FormatInt(a.now().UnixMilli(), 10)
	passphrase := base64.StdEncoding.EncodeToString(hmacSHA256(creds.APISecret, creds.Passphrase))

	return a.http.do(ctx, http.MethodPost, path, body, map[string]string{
		"KC-API-KEY":         creds.APIKey,
		"KC-API-SIGN":        signBase64(creds.APISecret, ts, http.MethodPost, path, body),
		"KC-API-TIMESTAMP":   ts,
		"KC-API-PASSPHRASE":  passphrase,
		"KC-API-KEY-VERSION": "2",
	})
}

// --- bitget ---

type bitgetAdapter struct {
	http httpCaller
	now  func() time.Time
}

func (a *bitgetAdapter) Kind() Kind { return Bitget }

func (a *bitgetAdapter) PlaceOrder(ctx context.Context, creds Credentials, sig signals.TradeSignal) (Response, error) {
	const path = "/api/v2/spot/order"
	body, err := json.Marshal(struct {
		Symbol    string      `json:"symbol"`
		Side      string      `json:"side"`
		OrderType string      `json:"orderType"`
		Quantity  json.Number `json:"quantity"`
	}{
		Symbol:    sig.Symbol,
		Side:      strings.ToLower(string(sig.Action)),
		OrderType: "market",
		Quantity:  json.Number(sig.Quantity.String()),
	})
	if err != nil {
		return Response{}, err
	}
	ts := strconv.FormatInt(a.now().UnixMilli(), 10)

	return a.http.do(ctx, http.MethodPost, path, body, map[string]string{
		"ACCESS-KEY":        creds.APIKey,
		"ACCESS-SIGN":       signBase64(creds.APISecret, ts, http.MethodPost, path, body),
		"ACCESS-TIMESTAMP":  ts,
		"ACCESS-PASSPHRASE": creds.Passphrase,
	})
}

// --- oanda ---

type oandaAdapter struct {
	http httpCaller
}

func (a *oandaAdapter) Kind() Kind { return OANDA }

func (a *oandaAdapter) PlaceOrder(ctx context.Context, creds Credentials, sig signals.TradeSignal) (Response, error) {
	units := sig.Quantity
	if sig.Action == signals.Sell {
		units = units.Neg()
	}
	type order struct {
		Instrument string `json:"instrument"`
		Units      string `json:"units"`
		Type       string `json:"type"`
	}
	body, err := json.Marshal(struct {
		Order order `json:"order"`
	}{Order: order{Instrument: sig.Symbol, Units: units.String(), Type: "MARKET"}})
	if err != nil {
		return Response{}, err
	}
	path := "/v3/accounts/" + url.PathEscape(creds.AccountID) + "/orders"
	return a.http.do(ctx, http.MethodPost, path, body, map[string]string{
		"Authorization": "Bearer " + creds.APIKey,
	})
}

// --- metatrader5 bridge ---

type mt5Adapter struct {
	http httpCaller
	opts MT5Options
}

func (a *mt5Adapter) Kind() Kind { return MetaTrader5 }

func (a *mt5Adapter) PlaceOrder(ctx context.Context, creds Credentials, sig signals.TradeSignal) (Response, error) {
	body, err := json.Marshal(struct {
		Login     string      `json:"login"`
		Password  string      `json:"password"`
		Server    string      `json:"server"`
		Symbol    string      `json:"symbol"`
		Action    string      `json:"action"`
		Quantity  json.Number `json:"quantity"`
		Type      string      `json:"type"`
		Deviation int         `json:"deviation,omitempty"`
		Magic     int         `json:"magic,omitempty"`
	}{
		Login:     creds.Login,
		Password:  creds.Password,
		Server:    creds.Server,
		Symbol:    sig.Symbol,
		Action:    strings.ToLower(string(sig.Action)),
		Quantity:  json.Number(sig.Quantity.String()),
		Type:      "MARKET",
		Deviation: a.opts.Deviation,
		Magic:     a.opts.MagicNumber,
	})
	if err != nil {
		return Response{}, err
	}
	return a.http.do(ctx, http.MethodPost, "/api/trade", body, nil)
}
