// Package scep implements the ProtocolEngine component from spec §4.7: the
// server side of a SCEP-style certificate-issuance transaction, the
// "flagship composition" wiring together CryptoEnvelope (§4.4),
// IdentifierService (§4.3), CertObject (§4.5), and SignatureEngine (§4.6).
//
// Grounded on _examples/tasuku-revol-scep/scep/scep.go's PKIMessage model
// (ParsePKIMessage/DecryptPKIEnvelope/Success/Fail, the SCEP attribute OID
// table, message/status/failInfo string constants) reshaped around this
// tree's envelope/certobj/sigengine packages instead of a monolithic
// pkcs7-parsing struct, and around the five-state server transaction
// diagram in spec §4.7 instead of a client-oriented request builder.
package scep

import (
	"crypto"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"time"

	"github.com/aox/pkicore/berrors"
	"github.com/aox/pkicore/certobj"
	"github.com/aox/pkicore/envelope"
	"github.com/aox/pkicore/goodkey"
	"github.com/aox/pkicore/identifier"
	"github.com/aox/pkicore/lint"
	"github.com/aox/pkicore/log"
	"github.com/aox/pkicore/metrics"
	"github.com/aox/pkicore/pkiuser"
	cryptobyte "golang.org/x/crypto/cryptobyte"
	cryptobyte_asn1 "golang.org/x/crypto/cryptobyte/asn1"
	"go.mozilla.org/pkcs7"
)

// MessageType is the SCEP messageType signed attribute, encoded on the
// wire as decimal digits in an IA5String -- spec §4.7 step 3's "yes,
// integers as strings".
type MessageType string

const (
	MessageTypeCertRep    MessageType = "3"
	MessageTypeRenewalReq MessageType = "17"
	MessageTypeUpdateReq  MessageType = "18"
	MessageTypePKCSReq    MessageType = "19"
	MessageTypeCertPoll   MessageType = "20"
	MessageTypeGetCert    MessageType = "21"
	MessageTypeGetCRL     MessageType = "22"
)

// PKIStatus is the SCEP pkiStatus signed attribute.
type PKIStatus string

const (
	StatusSuccess PKIStatus = "0"
	StatusFailure PKIStatus = "2"
	StatusPending PKIStatus = "3"
)

// FailInfo is the SCEP failInfo signed attribute.
type FailInfo string

const (
	FailInfoBadAlg          FailInfo = "0"
	FailInfoBadMessageCheck FailInfo = "1"
	FailInfoBadRequest      FailInfo = "2"
	FailInfoBadTime         FailInfo = "3"
	FailInfoBadCertID       FailInfo = "4"
)

// SCEP attribute OIDs, matching asn1io's test table and
// _examples/tasuku-revol-scep/scep/scep.go's oidSCEP* set.
var (
	oidMessageType    = asn1.ObjectIdentifier{2, 16, 840, 1, 113733, 1, 9, 2}
	oidPKIStatus      = asn1.ObjectIdentifier{2, 16, 840, 1, 113733, 1, 9, 3}
	oidFailInfo       = asn1.ObjectIdentifier{2, 16, 840, 1, 113733, 1, 9, 4}
	oidSenderNonce    = asn1.ObjectIdentifier{2, 16, 840, 1, 113733, 1, 9, 5}
	oidRecipientNonce = asn1.ObjectIdentifier{2, 16, 840, 1, 113733, 1, 9, 6}
	oidTransactionID  = asn1.ObjectIdentifier{2, 16, 840, 1, 113733, 1, 9, 7}
	oidChallengePwd   = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 7}
	oidKeyUsage       = asn1.ObjectIdentifier{2, 5, 29, 15}
)

// ErrSilentClose marks a failure in the outer-signature read stage (spec
// §4.7's READ_OUTER_SIG): the server must not emit any reply at all, to
// avoid amplification and fingerprinting. Callers should check
// errors.Is(err, ErrSilentClose) and, if true, close the connection
// without writing a response.
var ErrSilentClose = berrors.New(berrors.Invalid, "transaction aborted before an authenticated response could be built")

// ia5 wraps s as an ASN.1 RawValue tagged IA5String (universal tag 22), so
// a SCEP signed attribute built from a Go string round-trips with the wire
// tag spec §4.7 calls out rather than encoding/asn1's default
// PrintableString choice for all-printable content.
func ia5(s string) asn1.RawValue {
	return asn1.RawValue{Class: asn1.ClassUniversal, Tag: 22, Bytes: []byte(s)}
}

// UserStore is the PKI User Record lookup this engine needs from a
// CertStore (spec §4.3/§4.7 step 5); certstore's implementation backs
// this by enumerating records and calling pkiuser.Record.MatchesUserID.
type UserStore interface {
	FindByTransactionID(transID []byte) (*pkiuser.Record, error)
}

// Config is the static material an Engine needs to run transactions: the
// CA's own signing identity, a validity period for issued leaves, and the
// user store used for step-5 authentication.
type Config struct {
	CACert             *x509.Certificate
	CAKey              crypto.Signer
	CAChain            []*x509.Certificate
	Hash               crypto.Hash
	ValidityPeriod     time.Duration
	SerialPrefix       byte
	SideChannelProtect bool
	Users              UserStore
	Log                log.Logger
	Rand               randomSource
	KeyPolicy          goodkey.Policy
	Metrics            *metrics.Metrics
	Linter             *lint.Linter
}

// randomSource is satisfied by random.Pool, scoped narrowly so this
// package doesn't need to import it just to accept *random.Pool.
type randomSource interface {
	Read(b []byte) (int, error)
}

// Engine runs server-side SCEP transactions per spec §4.7.
type Engine struct {
	cfg      Config
	caObject *certobj.Object
}

// NewEngine builds an Engine from cfg, importing the CA certificate as a
// signed CertObject (certobj.Import) so issuance can delegate DN lookups
// to the same CertObject machinery a freshly-issued leaf uses.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Hash == 0 {
		cfg.Hash = crypto.SHA256
	}
	if cfg.ValidityPeriod == 0 {
		cfg.ValidityPeriod = 365 * 24 * time.Hour
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.Reader
	}
	if cfg.KeyPolicy.MaxRSAModulusBits == 0 && len(cfg.KeyPolicy.AllowedCurves) == 0 {
		cfg.KeyPolicy = goodkey.DefaultPolicy()
	}
	// Linter is left nil by default (opt-in, not auto-enabled): zlint's
	// baseline-compliance lints assume a CA/Browser-Forum-shaped profile
	// and reject perfectly valid private-PKI leaves that simply don't
	// carry every extension a public WebPKI cert would. Callers issuing
	// into the public WebPKI should set one explicitly, e.g. via
	// lint.NewExcluding for profiles that intentionally diverge.
	caObject, err := certobj.Import(certobj.KindCert, cfg.CACert.Raw)
	if err != nil {
		return nil, berrors.New(berrors.Invalid, "importing CA certificate: %v", err)
	}
	return &Engine{cfg: cfg, caObject: caObject}, nil
}

// Outcome is the result of HandleTransaction: either a response to send,
// or a silent-close instruction.
type Outcome struct {
	Response    []byte
	SilentClose bool
	Status      PKIStatus
	FailInfo    FailInfo
}

// HandleTransaction drives exactly one server-side transaction through the
// state diagram in spec §4.7: READ_OUTER_SIG, READ_INNER_ENC, AUTHENTICATE,
// ISSUE, then BUILD_OK/BUILD_ERROR and SEND. raw is the client's signed,
// encrypted PKCSReq message.
func (e *Engine) HandleTransaction(raw []byte) (Outcome, error) {
	p7, transID, nonce, err := e.readOuterSig(raw)
	if err != nil {
		e.audit("scep transaction aborted at outer signature", err)
		return Outcome{SilentClose: true}, ErrSilentClose
	}

	csr, err := e.readInnerEnc(p7)
	if err != nil {
		return e.buildError(transID, nonce, FailInfoBadMessageCheck, err)
	}

	user, profile, err := e.authenticate(csr, transID)
	if err != nil {
		return e.buildError(transID, nonce, FailInfoBadRequest, err)
	}
	_ = user

	leafDER, err := e.issue(csr, profile)
	if err != nil {
		return e.buildError(transID, nonce, FailInfoBadRequest, err)
	}

	resp, err := e.buildSuccess(p7, transID, nonce, leafDER)
	if err != nil {
		return e.buildError(transID, nonce, FailInfoBadRequest, err)
	}
	e.audit("scep transaction issued certificate", nil)
	if e.cfg.Metrics != nil {
		e.cfg.Metrics.NoteTransaction(string(StatusSuccess), "")
	}
	return Outcome{Response: resp, Status: StatusSuccess}, nil
}

func (e *Engine) audit(msg string, err error) {
	if e.cfg.Log == nil {
		return
	}
	if err != nil {
		e.cfg.Log.AuditErrf("%s: %v", msg, err)
		return
	}
	e.cfg.Log.AuditObject(msg, nil)
}

// readOuterSig implements spec §4.7 step 1-2: parse the outer SignedData,
// verify it against its own embedded (ephemeral, self-signed) certificate,
// and pull out the signed attributes every SCEP message must carry. Any
// failure here is reported to the caller as a silent-close condition by
// HandleTransaction -- this function itself returns an ordinary error.
func (e *Engine) readOuterSig(raw []byte) (*pkcs7.PKCS7, []byte, []byte, error) {
	p7, err := pkcs7.Parse(raw)
	if err != nil {
		return nil, nil, nil, berrors.New(berrors.BadData, "parsing outer SignedData: %v", err)
	}
	if err := p7.Verify(); err != nil {
		return nil, nil, nil, berrors.New(berrors.Signature, "outer SignedData signature invalid: %v", err)
	}
	signer := p7.GetOnlySigner()
	if signer == nil {
		return nil, nil, nil, berrors.New(berrors.BadData, "no signer certificate in outer SignedData")
	}
	if signer.KeyUsage != 0 && signer.KeyUsage&x509.KeyUsageKeyEncipherment == 0 {
		return nil, nil, nil, berrors.New(berrors.BadData, "ephemeral signer certificate is not usable for decryption")
	}

	var transID string
	if err := p7.UnmarshalSignedAttribute(oidTransactionID, &transID); err != nil {
		return nil, nil, nil, berrors.New(berrors.BadData, "missing transactionID: %v", err)
	}
	var msgType MessageType
	if err := p7.UnmarshalSignedAttribute(oidMessageType, &msgType); err != nil {
		return nil, nil, nil, berrors.New(berrors.BadData, "missing messageType: %v", err)
	}
	if msgType != MessageTypePKCSReq {
		return nil, nil, nil, berrors.New(berrors.BadData, "unexpected messageType %q, want PKCSReq", msgType)
	}
	var nonce []byte
	if err := p7.UnmarshalSignedAttribute(oidSenderNonce, &nonce); err != nil {
		return nil, nil, nil, berrors.New(berrors.BadData, "missing senderNonce: %v", err)
	}
	if len(nonce) < 8 {
		return nil, nil, nil, berrors.New(berrors.BadData, "senderNonce too short")
	}

	return p7, []byte(transID), nonce, nil
}

// readInnerEnc implements spec §4.7 step 4: decrypt the inner
// EnvelopedData with the server's CA key to recover the PKCS#10 request.
func (e *Engine) readInnerEnc(p7 *pkcs7.PKCS7) (*x509.CertificateRequest, error) {
	plaintext, err := envelope.Decrypt(p7.Content, e.cfg.CACert, e.cfg.CAKey)
	if err != nil {
		return nil, err
	}
	csr, err := x509.ParseCertificateRequest(plaintext)
	if err != nil {
		return nil, berrors.New(berrors.BadData, "parsing inner PKCS#10 request: %v", err)
	}
	if err := csr.CheckSignature(); err != nil {
		return nil, berrors.New(berrors.BadData, "inner PKCS#10 self-signature invalid: %v", err)
	}
	return csr, nil
}

// authenticate implements spec §4.7 steps 5-6: the PKCS#10 must carry a
// challengePassword matching the PKI User Record addressed by transID, and
// the record's profile constraints must be reconcilable with the request.
func (e *Engine) authenticate(csr *x509.CertificateRequest, transID []byte) (*pkiuser.Record, pkiuser.ProfileConstraints, error) {
	challenge, ok, err := challengePassword(csr.Raw)
	if err != nil {
		return nil, pkiuser.ProfileConstraints{}, err
	}
	if !ok {
		return nil, pkiuser.ProfileConstraints{}, berrors.New(berrors.BadData, "PKCS#10 request is missing a challengePassword attribute")
	}

	if e.cfg.Users == nil {
		return nil, pkiuser.ProfileConstraints{}, berrors.New(berrors.NotFound, "no user store configured")
	}
	user, err := e.cfg.Users.FindByTransactionID(transID)
	if err != nil {
		return nil, pkiuser.ProfileConstraints{}, err
	}
	if !user.ComparePassword([]byte(challenge)) {
		return nil, pkiuser.ProfileConstraints{}, berrors.New(berrors.BadData, "challengePassword does not match PKI user record")
	}

	if user.ProfileConstraints.FillSubjectCN != "" && len(csr.Subject.CommonName) > 0 && csr.Subject.CommonName != user.ProfileConstraints.FillSubjectCN {
		return nil, pkiuser.ProfileConstraints{}, berrors.New(berrors.BadData, "request subject CN conflicts with PKI user profile")
	}
	return user, user.ProfileConstraints, nil
}

// issue implements spec §4.7 step 7: sign a new leaf certificate with the
// CA key via certobj/sigengine, applying profile constraints.
func (e *Engine) issue(csr *x509.CertificateRequest, profile pkiuser.ProfileConstraints) ([]byte, error) {
	if err := e.cfg.KeyPolicy.GoodKey(csr.PublicKey); err != nil {
		return nil, err
	}

	subjectDN := csr.RawSubject
	if profile.FillSubjectCN != "" {
		der, err := asn1.Marshal(pkix.Name{CommonName: profile.FillSubjectCN}.ToRDNSequence())
		if err != nil {
			return nil, berrors.New(berrors.Failed, "marshaling profile subject DN: %v", err)
		}
		subjectDN = der
	}

	serial, err := e.generateSerial()
	if err != nil {
		return nil, err
	}

	leaf := certobj.New(certobj.KindCert)
	if err := leaf.SetSubjectDN(subjectDN); err != nil {
		return nil, err
	}
	if err := leaf.SetSerial(serial); err != nil {
		return nil, err
	}
	now := time.Now()
	if err := leaf.SetValidity(certobj.Validity{NotBefore: now, NotAfter: now.Add(e.cfg.ValidityPeriod)}); err != nil {
		return nil, err
	}
	if err := leaf.SetPublicKeyInfo(csr.RawSubjectPublicKeyInfo, csr.PublicKey); err != nil {
		return nil, err
	}

	for _, attr := range requestedExtensions(csr, profile) {
		if err := leaf.AddAttribute(attr); err != nil {
			return nil, err
		}
	}

	if err := leaf.Sign(e.caObject, e.cfg.CAKey, e.cfg.Hash, e.cfg.SideChannelProtect); err != nil {
		if e.cfg.Metrics != nil {
			e.cfg.Metrics.NoteSignError(err)
		}
		return nil, err
	}
	if e.cfg.Metrics != nil {
		e.cfg.Metrics.NoteSignature("leaf", e.cfg.CACert.Subject.CommonName)
		e.cfg.Metrics.NoteCertificateIssued("scep")
	}

	if e.cfg.Linter != nil {
		if _, err := e.cfg.Linter.Lint(leaf.EncodedBytes); err != nil {
			if e.cfg.Metrics != nil {
				e.cfg.Metrics.NoteLintError()
			}
			return nil, berrors.New(berrors.Failed, "issued certificate failed linting: %v", err)
		}
	}
	return leaf.EncodedBytes, nil
}

func (e *Engine) generateSerial() ([]byte, error) {
	buf := make([]byte, identifier.MaxSerialSize/2+1)
	buf[0] = e.cfg.SerialPrefix
	if _, err := e.cfg.Rand.Read(buf[1:]); err != nil {
		return nil, berrors.New(berrors.Failed, "generating serial number: %v", err)
	}
	return buf, nil
}

// requestedExtensions carries the CSR's requested extensions through,
// overriding keyUsage with the PKI user profile's required bits when the
// profile specifies any (spec §4.7 step 6: "enforce extensions").
func requestedExtensions(csr *x509.CertificateRequest, profile pkiuser.ProfileConstraints) []certobj.Attribute {
	var attrs []certobj.Attribute
	for _, ext := range csr.Extensions {
		if ext.Id.Equal(oidKeyUsage) && profile.RequiredKeyUsage != 0 {
			continue
		}
		attrs = append(attrs, certobj.Attribute{OID: ext.Id, Critical: ext.Critical, Value: ext.Value})
	}
	if profile.RequiredKeyUsage != 0 {
		if value, err := marshalKeyUsage(profile.RequiredKeyUsage); err == nil {
			attrs = append(attrs, certobj.Attribute{OID: oidKeyUsage, Critical: true, Value: value})
		}
	}
	return attrs
}

func marshalKeyUsage(usage int) ([]byte, error) {
	var bits asn1.BitString
	bits.Bytes = []byte{byte(usage)}
	bits.BitLength = 8
	return asn1.Marshal(bits)
}

// buildSuccess implements spec §4.7 step 8 for the Success path: sign the
// response attribute set and the degenerate certificate chain with the CA
// key, then encrypt to the client's ephemeral signer cert.
func (e *Engine) buildSuccess(p7 *pkcs7.PKCS7, transID, nonce, leafDER []byte) ([]byte, error) {
	signer := p7.GetOnlySigner()
	degenerate, err := pkcs7.DegenerateCertificate(append(append([]byte(nil), leafDER...), concatRaw(e.cfg.CAChain)...))
	if err != nil {
		return nil, berrors.New(berrors.Failed, "building degenerate certificate chain: %v", err)
	}
	encrypted, err := envelope.Encrypt(degenerate, []*x509.Certificate{signer})
	if err != nil {
		return nil, err
	}
	return e.sign(encrypted, transID, nonce, StatusSuccess, "")
}

// buildError implements spec §4.7's BUILD_ERROR transitions, always firing
// before HandleTransaction returns for any failure past READ_OUTER_SIG.
func (e *Engine) buildError(transID, nonce []byte, failInfo FailInfo, cause error) (Outcome, error) {
	e.audit("scep transaction failed", cause)
	resp, err := e.sign(nil, transID, nonce, StatusFailure, failInfo)
	if err != nil {
		return Outcome{}, err
	}
	if e.cfg.Metrics != nil {
		e.cfg.Metrics.NoteTransaction(string(StatusFailure), string(failInfo))
	}
	return Outcome{Response: resp, Status: StatusFailure, FailInfo: failInfo}, nil
}

func (e *Engine) sign(payload []byte, transID, nonce []byte, status PKIStatus, failInfo FailInfo) ([]byte, error) {
	attrs := []pkcs7.Attribute{
		{Type: oidTransactionID, Value: string(transID)},
		{Type: oidMessageType, Value: ia5(string(MessageTypeCertRep))},
		{Type: oidPKIStatus, Value: ia5(string(status))},
		{Type: oidRecipientNonce, Value: nonce},
	}
	if status == StatusFailure {
		attrs = append(attrs, pkcs7.Attribute{Type: oidFailInfo, Value: ia5(string(failInfo))})
	}
	return envelope.Sign(payload, e.cfg.CACert, e.cfg.CAKey, attrs, e.cfg.CAChain...)
}

func concatRaw(certs []*x509.Certificate) []byte {
	var out []byte
	for _, c := range certs {
		out = append(out, c.Raw...)
	}
	return out
}

// challengePassword extracts the PKCS#9 challengePassword attribute from a
// CertificationRequestInfo's attributes [0] IMPLICIT SET, walking the DER
// directly with cryptobyte rather than through x509.CertificateRequest's
// deprecated, AttributeTypeAndValue-shaped Attributes field, which cannot
// represent a bare-string attribute value like challengePassword.
func challengePassword(csrDER []byte) (string, bool, error) {
	input := cryptobyte.String(csrDER)
	var whole cryptobyte.String
	if !input.ReadASN1(&whole, cryptobyte_asn1.SEQUENCE) {
		return "", false, berrors.New(berrors.BadData, "malformed CertificationRequest")
	}
	var cri cryptobyte.String
	if !whole.ReadASN1(&cri, cryptobyte_asn1.SEQUENCE) {
		return "", false, berrors.New(berrors.BadData, "malformed CertificationRequestInfo")
	}
	var version cryptobyte.String
	if !cri.ReadASN1(&version, cryptobyte_asn1.INTEGER) {
		return "", false, berrors.New(berrors.BadData, "malformed CertificationRequestInfo version")
	}
	var subject cryptobyte.String
	if !cri.ReadASN1(&subject, cryptobyte_asn1.SEQUENCE) {
		return "", false, berrors.New(berrors.BadData, "malformed CertificationRequestInfo subject")
	}
	var spki cryptobyte.String
	if !cri.ReadASN1(&spki, cryptobyte_asn1.SEQUENCE) {
		return "", false, berrors.New(berrors.BadData, "malformed CertificationRequestInfo SPKI")
	}
	attrsTag := cryptobyte_asn1.Tag(0xa0)
	if !cri.PeekASN1Tag(attrsTag) {
		return "", false, nil
	}
	var attrs cryptobyte.String
	if !cri.ReadASN1(&attrs, attrsTag) {
		return "", false, berrors.New(berrors.BadData, "malformed CertificationRequestInfo attributes")
	}
	for !attrs.Empty() {
		var attr cryptobyte.String
		if !attrs.ReadASN1(&attr, cryptobyte_asn1.SEQUENCE) {
			return "", false, berrors.New(berrors.BadData, "malformed CSR attribute")
		}
		var oidBytes cryptobyte.String
		var oidTag cryptobyte_asn1.Tag
		if !attr.ReadAnyASN1Element(&oidBytes, &oidTag) {
			return "", false, berrors.New(berrors.BadData, "malformed CSR attribute type")
		}
		var oid asn1.ObjectIdentifier
		if _, err := asn1.Unmarshal(oidBytes, &oid); err != nil {
			return "", false, berrors.New(berrors.BadData, "malformed CSR attribute OID: %v", err)
		}
		var values cryptobyte.String
		if !attr.ReadASN1(&values, cryptobyte_asn1.SET) {
			return "", false, berrors.New(berrors.BadData, "malformed CSR attribute values")
		}
		if !oid.Equal(oidChallengePwd) {
			continue
		}
		var strTag cryptobyte_asn1.Tag
		var strBytes cryptobyte.String
		if !values.ReadAnyASN1(&strBytes, &strTag) {
			return "", false, berrors.New(berrors.BadData, "malformed challengePassword value")
		}
		return string(strBytes), true, nil
	}
	return "", false, nil
}
