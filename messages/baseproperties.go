// Package messages implements the common message layer of the web payment
// authorization protocol: the JSON vocabulary shared by payer, merchant,
// bank and acquirer, the typed messages built on it, and the selection,
// verification and encryption algorithms that operate on them.
package messages

// JSON property names. The vocabulary is closed: parsers reject objects
// carrying anything outside the fields their schema declares.
const (
	PaymentRequestJSON       = "paymentRequest"
	PayeeJSON                = "payee"
	AmountJSON               = "amount"
	CurrencyJSON             = "currency"
	ReferenceIDJSON          = "referenceId"
	TimeStampJSON            = "timeStamp"
	ExpiresJSON              = "expires"
	DomainNameJSON           = "domainName"
	AccountTypeJSON          = "accountType"
	AccountIDJSON            = "accountId"
	AuthDataJSON             = "authData"
	AuthURLJSON              = "authUrl"
	// The wire name predates the non-card bank-account type; the list holds
	// account types of every kind.
	AcceptedCardTypesJSON    = "acceptedCardTypes"
	PullPaymentJSON          = "pullPayment" // false or absent means "push"
	ReserveJSON              = "reserve"     // false means direct debit
	ClientIPAddressJSON      = "clientIpAddress"
	EncryptedDataJSON        = "encryptedData"
	EncryptedKeyJSON         = "encryptedKey"
	AlgorithmJSON            = "algorithm"
	IVJSON                   = "iv"
	TagJSON                  = "tag"
	CipherTextJSON           = "cipherText"
	EphemeralClientKeyJSON   = "ephemeralClientKey"
	PaymentProviderKeyJSON   = "paymentProviderKey"
	RequestHashJSON          = "requestHash"
	ValueJSON                = "value"
	ErrorCodeJSON            = "errorCode"
	DescriptionJSON          = "description"
	AuthorityURLJSON         = "authorityUrl"
	TransactionURLJSON       = "transactionUrl"
	PublicKeyJSON            = "publicKey"
	ProtectedAccountDataJSON = "protectedAccountData"
	MessageTypeJSON          = "messageType"
	SignatureJSON            = "signature"
	SoftwareIDJSON           = "softwareId"
	SoftwareVersionJSON      = "softwareVersion"
)

// Message type tags. Every top-level protocol object carries exactly one.
const (
	MsgInvocation           = "invocation"
	MsgPayerGenericAuthReq  = "payer-generic-authorization-request"
	MsgPayerPullAuthReq     = "payer-pull-authorization-request"
	MsgReserveOrDebitReq    = "reserve-or-debit-request"
	MsgReserveOrDebitResp   = "reserve-or-debit-response"
	MsgFinalizeRequest      = "finalize-request"
	MsgFinalizeResponse     = "finalize-response"
	MsgErrorResponse        = "error-response"
	MsgAuthority            = "authority"
)

// Algorithm identifiers (JOSE). Closed sets; anything else fails closed.
const (
	AlgRSAOAEP256   = "RSA-OAEP-256"   // key encryption
	AlgECDHES       = "ECDH-ES"        // key encryption
	AlgA256CBCHS512 = "A256CBC-HS512"  // content encryption
	AlgS256         = "S256"           // request hashing
)

// JSONContentType is required on every protocol request and response body,
// including externally fetched authority objects.
const JSONContentType = "application/json"

// Account types. Acquirer-based types carry protected account data that is
// encrypted end to end toward the acquirer; the bank-settlement type passes
// the account identifier in clear to the transport bank.
const (
	AccountTypeBankAccount = "bank-account"
	AccountTypeSuperCard   = "supercard"
	AccountTypeCoolCard    = "coolcard"
)

var accountTypes = map[string]bool{
	AccountTypeBankAccount: false,
	AccountTypeSuperCard:   true,
	AccountTypeCoolCard:    true,
}

// IsAcquirerBased reports whether the account type routes protected account
// data through an acquirer. Unknown account types are a parse-level failure.
func IsAcquirerBased(accountType string) (bool, error) {
	acquirer, ok := accountTypes[accountType]
	if !ok {
		return false, Errf(MalformedMessage, "unknown account type %q", accountType)
	}
	return acquirer, nil
}
