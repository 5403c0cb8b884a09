// Package certobj implements the CertObject component from spec §4.5: the
// mutable-until-signed certificate record, covering subject/issuer DN,
// validity window, embedded public key, extensions, and the variant
// sub-records for certificate chains, CRLs, and PKI user profiles.
//
// Grounded on ca/ca.go's issuance cycle for the signing half (serial
// generation, the deterministic-TBS re-parse after signing) and on
// original_source/cryptlib/cert/certobj.h's field list (retrieved in
// original_source/_INDEX.md) for the object's attribute/flag model, reshaped
// with Go accessor/setter conventions rather than a generic attribute-ID
// switch.
package certobj

import (
	"crypto"
	"crypto/x509/pkix"
	"encoding/asn1"
	"math/big"
	"time"

	"github.com/aox/pkicore/asn1io"
	"github.com/aox/pkicore/berrors"
	"github.com/aox/pkicore/identifier"
	"github.com/aox/pkicore/sigengine"
	cryptobyte "golang.org/x/crypto/cryptobyte"
	cryptobyte_asn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// Kind is the certificate-object variant, per spec §4.5's `type` field.
type Kind int

const (
	KindCert Kind = iota
	KindAttrCert
	KindCertChain
	KindCertReq
	KindCrmfReq
	KindRevReq
	KindCrl
	KindRtcsReq
	KindRtcsResp
	KindOcspReq
	KindOcspResp
	KindCmsAttrs
	KindPkiUser
)

// Flags holds the object's boolean state bits, per spec §4.5's `flags`.
type Flags int

const (
	FlagSelfSigned Flags = 1 << iota
	FlagSigChecked
	FlagDataOnly
	FlagCertCollection
)

// Has reports whether all bits of want are set in f.
func (f Flags) Has(want Flags) bool { return f&want == want }

// Validity is the object's notBefore/notAfter window.
type Validity struct {
	NotBefore time.Time
	NotAfter  time.Time
}

// validityASN1 mirrors RFC 5280's Validity SEQUENCE. Letting
// encoding/asn1.Marshal encode the embedded time.Time fields directly
// (rather than building them by hand in asn1io) gets the UTCTime-vs-
// GeneralizedTime split required by RFC 5280 §4.1.2.5 for free: the stdlib
// picks GeneralizedTime whenever the year falls outside UTCTime's 1950-2049
// range, which is exactly the rule a hand-rolled encoder would otherwise
// have to duplicate.
type validityASN1 struct {
	NotBefore time.Time
	NotAfter  time.Time
}

// Attribute is one extension entry: an OID, a criticality flag, and the
// DER-encoded extension value (the octet string payload, not wrapped in
// its own OCTET STRING tag -- marshalExtensions adds that wrapper).
type Attribute struct {
	OID      asn1.ObjectIdentifier
	Critical bool
	Value    []byte
}

// ChainEntry is one position of a CertChain's array, selected by the
// chain's cursor (spec §4.5: "delegates nearly all attribute queries to its
// currently-selected chain position").
type ChainEntry struct {
	EncodedBytes []byte
	SubjectDN    []byte
	IssuerDN     []byte
}

// RevokedEntry is one row of a Crl's revocation list.
type RevokedEntry struct {
	Serial         []byte
	RevocationTime time.Time
}

// ValidityStatus is the good/revoked/unknown status reported for one
// entry of an RtcsResp/OcspResp's validity list.
type ValidityStatus int

const (
	StatusGood ValidityStatus = iota
	StatusRevoked
	StatusUnknown
)

// ValidityEntry is one row of the validity-list sub-record spec §3
// describes for CertObject, shared by the RtcsResp and OcspResp variants:
// RTCS identifies the certificate by a hash of its DER encoding, OCSP by
// {issuerNameHash, issuerKeyHash, serialNumber} (ocspproto keeps the
// parsed CertID alongside this entry rather than flattening it into
// Serial, since RTCS and OCSP disagree on what "Serial" even means here).
type ValidityEntry struct {
	Serial         []byte
	Status         ValidityStatus
	RevocationTime time.Time
}

// Object is the mutable-until-signed certificate record from spec §4.5.
// All attribute-write operations succeed only while EncodedBytes is nil;
// Sign/PseudoSign materialise EncodedBytes and flip the object immutable,
// after which only the component-selector setters (SetDNCursor,
// SetExtensionCursor, SelectCurrentExtension, SetTrustFlags,
// SetInitialised) may still be called.
type Object struct {
	Kind Kind

	SubjectDN []byte // canonical DER Name bytes, retained verbatim off the wire
	IssuerDN  []byte

	Validity Validity
	Serial   []byte

	PublicKeyInfo []byte // DER SubjectPublicKeyInfo
	parsedKey     crypto.PublicKey

	Attributes []Attribute

	SignatureAlgo asn1.ObjectIdentifier
	EncodedBytes  []byte // nil until signed or imported

	Flags Flags

	Chain       []ChainEntry
	ChainCursor int

	Revoked []RevokedEntry

	ValidityList []ValidityEntry

	PkiUserProfile *PkiUserProfile

	// Post-sign byte-slice pointers into EncodedBytes, populated by
	// parsePostSign so repeated accessors avoid a second DER walk.
	signedIssuerDN  []byte
	signedSubjectDN []byte
	signedSPKI      []byte

	// Component-selector cursors, writable even once signed.
	dnCursor        int
	extensionCursor int
	currentExtOID   asn1.ObjectIdentifier
	trustFlags      int
}

// PkiUserProfile is a CertObject's PKI-user variant sub-record.
type PkiUserProfile struct {
	UserID        []byte
	IssuePassword []byte
}

// New creates an empty, mutable CertObject of the given kind.
func New(kind Kind) *Object {
	return &Object{Kind: kind}
}

// Import builds a CertObject from an already-signed DER encoding (e.g. a
// CA certificate loaded from disk), per spec §4.5's "after signing (or
// after importing the signed encoding)". The object is immediately
// immutable and SigChecked, since its signature is assumed to have been
// validated out of band by whatever trust anchor handed it to the caller.
func Import(kind Kind, der []byte) (*Object, error) {
	o := &Object{Kind: kind, EncodedBytes: der, Flags: FlagSigChecked}
	if err := o.parsePostSign(); err != nil {
		return nil, err
	}
	return o, nil
}

func (o *Object) signed() bool { return o.EncodedBytes != nil }

// checkWritable rejects attribute writes once the object is signed, per
// spec §4.5's "all attribute-write operations succeed only while
// encodedBytes == None".
func (o *Object) checkWritable() error {
	if o.signed() {
		return berrors.New(berrors.Permission, "object is signed and immutable")
	}
	return nil
}

// SetSubjectDN sets the subject DN once, pre-sign. Re-setting an
// already-set single-valued field is Duplicate, not Permission -- the
// object is still mutable, the field itself is just already populated.
func (o *Object) SetSubjectDN(der []byte) error {
	if err := o.checkWritable(); err != nil {
		return err
	}
	if o.SubjectDN != nil {
		return berrors.New(berrors.Duplicate, "subjectDN already set")
	}
	o.SubjectDN = der
	return nil
}

// SetIssuerDN sets the issuer DN once, pre-sign.
func (o *Object) SetIssuerDN(der []byte) error {
	if err := o.checkWritable(); err != nil {
		return err
	}
	if o.IssuerDN != nil {
		return berrors.New(berrors.Duplicate, "issuerDN already set")
	}
	o.IssuerDN = der
	return nil
}

// SetValidity sets the notBefore/notAfter window once, pre-sign.
func (o *Object) SetValidity(v Validity) error {
	if err := o.checkWritable(); err != nil {
		return err
	}
	if !o.Validity.NotBefore.IsZero() || !o.Validity.NotAfter.IsZero() {
		return berrors.New(berrors.Duplicate, "validity already set")
	}
	o.Validity = v
	return nil
}

// SetSerial sets the serial number once, pre-sign.
func (o *Object) SetSerial(serial []byte) error {
	if err := o.checkWritable(); err != nil {
		return err
	}
	if o.Serial != nil {
		return berrors.New(berrors.Duplicate, "serial already set")
	}
	if len(serial) > identifier.MaxSerialSize {
		return berrors.New(berrors.Overflow, "serial of %d bytes exceeds max %d", len(serial), identifier.MaxSerialSize)
	}
	o.Serial = serial
	return nil
}

// SetPublicKeyInfo sets the embedded SubjectPublicKeyInfo once, pre-sign.
// parsedKey is the caller's already-parsed handle for the same bytes, kept
// alongside per spec §4.5's "opaque SPKI bytes + parsed context handle".
func (o *Object) SetPublicKeyInfo(der []byte, parsedKey crypto.PublicKey) error {
	if err := o.checkWritable(); err != nil {
		return err
	}
	if o.PublicKeyInfo != nil {
		return berrors.New(berrors.Duplicate, "publicKeyInfo already set")
	}
	o.PublicKeyInfo = der
	o.parsedKey = parsedKey
	return nil
}

// PublicKey returns the object's parsed public key handle.
func (o *Object) PublicKey() crypto.PublicKey { return o.parsedKey }

// SetPkiUserProfile sets the PKI-user variant sub-record once, pre-sign,
// for a KindPkiUser object.
func (o *Object) SetPkiUserProfile(profile *PkiUserProfile) error {
	if o.Kind != KindPkiUser {
		return berrors.New(berrors.Permission, "SetPkiUserProfile is only valid for PkiUser objects")
	}
	if err := o.checkWritable(); err != nil {
		return err
	}
	if o.PkiUserProfile != nil {
		return berrors.New(berrors.Duplicate, "PKI user profile already set")
	}
	o.PkiUserProfile = profile
	return nil
}

// AddValidityEntry appends one status row to an RtcsResp/OcspResp's
// validity list. Valid only for those two kinds, and only before the
// object is signed/pseudo-signed, per spec §4.5's write-then-sign
// lifecycle.
func (o *Object) AddValidityEntry(entry ValidityEntry) error {
	if o.Kind != KindRtcsResp && o.Kind != KindOcspResp {
		return berrors.New(berrors.Permission, "AddValidityEntry is only valid for RtcsResp/OcspResp objects")
	}
	if err := o.checkWritable(); err != nil {
		return err
	}
	o.ValidityList = append(o.ValidityList, entry)
	return nil
}

// AddAttribute appends an extension. Extensions are a list, not a
// single-valued field, so repeated calls are never Duplicate -- only
// blocked post-sign like any other attribute write.
func (o *Object) AddAttribute(attr Attribute) error {
	if err := o.checkWritable(); err != nil {
		return err
	}
	o.Attributes = append(o.Attributes, attr)
	return nil
}

// Attribute returns the extension with the given OID, or berrors.NotFound.
func (o *Object) Attribute(oid asn1.ObjectIdentifier) (Attribute, error) {
	for _, a := range o.Attributes {
		if a.OID.Equal(oid) {
			return a, nil
		}
	}
	return Attribute{}, berrors.New(berrors.NotFound, "no attribute with OID %v", oid)
}

// Component-selector attributes: writable even once signed, per spec
// §4.5's allow-list (DN-navigation cursor, extension-navigation cursor,
// current-extension selector, trust flags, IsInitialised).

// SetDNCursor moves the DN-navigation cursor, usable pre- or post-sign.
func (o *Object) SetDNCursor(pos int) { o.dnCursor = pos }

// DNCursor returns the current DN-navigation cursor position.
func (o *Object) DNCursor() int { return o.dnCursor }

// SetExtensionCursor moves the extension-navigation cursor, usable pre- or
// post-sign.
func (o *Object) SetExtensionCursor(pos int) error {
	if pos < 0 || pos > len(o.Attributes) {
		return berrors.New(berrors.BadData, "extension cursor %d out of range [0,%d]", pos, len(o.Attributes))
	}
	o.extensionCursor = pos
	return nil
}

// ExtensionCursor returns the current extension-navigation cursor position.
func (o *Object) ExtensionCursor() int { return o.extensionCursor }

// SelectCurrentExtension sets which OID the extension cursor addresses,
// usable pre- or post-sign.
func (o *Object) SelectCurrentExtension(oid asn1.ObjectIdentifier) { o.currentExtOID = oid }

// CurrentExtension returns the extension-selector OID.
func (o *Object) CurrentExtension() asn1.ObjectIdentifier { return o.currentExtOID }

// SetTrustFlags sets the trust flags, usable pre- or post-sign.
func (o *Object) SetTrustFlags(flags int) { o.trustFlags = flags }

// TrustFlags returns the trust flags.
func (o *Object) TrustFlags() int { return o.trustFlags }

// SetInitialised is the IsInitialised pseudo-attribute: the kernel's
// signal to transition the object to its high state. It carries no data of
// its own, so it simply no-ops if already signed (it is meaningless
// pre-sign, and idempotent post-sign).
func (o *Object) SetInitialised() {}

// IsSigned reports whether the object has materialised EncodedBytes.
func (o *Object) IsSigned() bool { return o.signed() }

// effectiveIssuerDN returns the issuer DN, preferring the post-sign byte-slice
// pointer into EncodedBytes when available.
func (o *Object) effectiveIssuerDN() []byte {
	if o.signedIssuerDN != nil {
		return o.signedIssuerDN
	}
	return o.IssuerDN
}

func (o *Object) effectiveSubjectDN() []byte {
	if o.signedSubjectDN != nil {
		return o.signedSubjectDN
	}
	return o.SubjectDN
}

func (o *Object) effectiveSPKI() []byte {
	if o.signedSPKI != nil {
		return o.signedSPKI
	}
	return o.PublicKeyInfo
}

// chainPosition range-checks and returns the currently-selected chain
// entry, per spec §4.5's CertChain delegation rule.
func (o *Object) chainPosition() (*ChainEntry, error) {
	if o.ChainCursor < 0 || o.ChainCursor >= len(o.Chain) {
		return nil, berrors.New(berrors.BadData, "chain cursor %d out of range [0,%d)", o.ChainCursor, len(o.Chain))
	}
	return &o.Chain[o.ChainCursor], nil
}

// EffectiveIssuerDN returns the issuer DN to present to a caller: for a
// CertChain, that of the selected chain position; otherwise the object's
// own (spec §4.5: type/self-signed/cursor queries address the chain as a
// whole, everything else delegates).
func (o *Object) EffectiveIssuerDN() ([]byte, error) {
	if o.Kind == KindCertChain {
		entry, err := o.chainPosition()
		if err != nil {
			return nil, err
		}
		return entry.IssuerDN, nil
	}
	return o.effectiveIssuerDN(), nil
}

// EffectiveSubjectDN is EffectiveIssuerDN's subject-side counterpart.
func (o *Object) EffectiveSubjectDN() ([]byte, error) {
	if o.Kind == KindCertChain {
		entry, err := o.chainPosition()
		if err != nil {
			return nil, err
		}
		return entry.SubjectDN, nil
	}
	return o.effectiveSubjectDN(), nil
}

// buildTBSCertificate assembles the RFC 5280 TBSCertificate DER, explicit
// v3 version, using sigengine.AlgorithmIdentifierDER for the self-
// referential `signature` field so it byte-matches the AlgorithmIdentifier
// CreateX509Signature will independently emit as the outer one.
func (o *Object) buildTBSCertificate(issuerDER []byte, hash crypto.Hash) ([]byte, error) {
	algoDER, err := sigengine.AlgorithmIdentifierDER(o.parsedKey, hash)
	if err != nil {
		return nil, err
	}

	validityDER, err := asn1.Marshal(validityASN1{NotBefore: o.Validity.NotBefore, NotAfter: o.Validity.NotAfter})
	if err != nil {
		return nil, berrors.New(berrors.Failed, "marshaling Validity: %v", err)
	}

	extensionsDER, err := o.marshalExtensions()
	if err != nil {
		return nil, err
	}

	w := asn1io.NewWriter()
	versionDER := asn1io.WrapExplicit(0, []byte{0x02, 0x01, 0x02}) // INTEGER 2 (v3)
	if _, err := w.WriteRaw(versionDER); err != nil {
		return nil, err
	}
	if err := w.WriteBignum(o.Serial); err != nil {
		return nil, err
	}
	if _, err := w.WriteRaw(algoDER); err != nil {
		return nil, err
	}
	if _, err := w.WriteRaw(issuerDER); err != nil {
		return nil, err
	}
	if _, err := w.WriteRaw(validityDER); err != nil {
		return nil, err
	}
	if _, err := w.WriteRaw(o.SubjectDN); err != nil {
		return nil, err
	}
	if _, err := w.WriteRaw(o.PublicKeyInfo); err != nil {
		return nil, err
	}
	if len(extensionsDER) > 0 {
		if _, err := w.WriteRaw(asn1io.WrapExplicit(3, extensionsDER)); err != nil {
			return nil, err
		}
	}
	return asn1io.WrapSequence(w.Bytes()), nil
}

func (o *Object) marshalExtensions() ([]byte, error) {
	if len(o.Attributes) == 0 {
		return nil, nil
	}
	w := asn1io.NewWriter()
	for _, attr := range o.Attributes {
		ext := pkix.Extension{Id: attr.OID, Critical: attr.Critical, Value: attr.Value}
		der, err := asn1.Marshal(ext)
		if err != nil {
			return nil, berrors.New(berrors.Failed, "marshaling extension %v: %v", attr.OID, err)
		}
		if _, err := w.WriteRaw(der); err != nil {
			return nil, err
		}
	}
	return asn1io.WrapSequence(w.Bytes()), nil
}

// Sign materialises EncodedBytes for a KindCert object: it builds the
// TBSCertificate, signs it via sigengine.CreateX509Signature, and
// populates the post-sign byte-slice pointers. The issuer DN used in the
// TBS is issuerCert's effective subject DN (self-signed when issuerCert ==
// o); the caller is responsible for passing the correct issuer.
func (o *Object) Sign(issuerCert *Object, signer crypto.Signer, hash crypto.Hash, sideChannelProtect bool) error {
	if o.Kind != KindCert && o.Kind != KindAttrCert {
		return berrors.New(berrors.Permission, "Sign is only valid for Cert/AttrCert objects, use PseudoSign for this kind")
	}
	if err := o.checkWritable(); err != nil {
		return err
	}
	if o.SubjectDN == nil || o.Serial == nil || o.PublicKeyInfo == nil {
		return berrors.New(berrors.NotInited, "subjectDN, serial, and publicKeyInfo must be set before signing")
	}
	if o.Validity.NotBefore.IsZero() || o.Validity.NotAfter.IsZero() {
		return berrors.New(berrors.NotInited, "validity must be set before signing")
	}

	issuerDN, err := issuerCert.EffectiveSubjectDN()
	if err != nil {
		return err
	}
	if o.IssuerDN == nil {
		o.IssuerDN = issuerDN
	}

	tbs, err := o.buildTBSCertificate(issuerDN, hash)
	if err != nil {
		return err
	}

	signed, err := sigengine.CreateX509Signature(tbs, signer, hash, sigengine.Plain, 0, sideChannelProtect)
	if err != nil {
		return err
	}

	o.EncodedBytes = signed
	if issuerCert == o {
		o.Flags |= FlagSelfSigned
	}
	if err := o.parsePostSign(); err != nil {
		o.EncodedBytes = nil
		return err
	}
	return nil
}

// PseudoSign implements spec §4.5's pseudo-sign for OcspReq/RtcsReq/RevReq
// objects: it writes the outer SEQUENCE wrapper around body, optionally
// appends popMarker to indicate out-of-band proof-of-possession, and flips
// the immutable bit. These kinds are explicitly marked SigChecked |
// SelfSigned afterward to prevent a caller double-checking a signature
// that was never really produced.
func (o *Object) PseudoSign(body []byte, popMarker []byte) error {
	switch o.Kind {
	case KindOcspReq, KindRtcsReq, KindRevReq:
	default:
		return berrors.New(berrors.Permission, "PseudoSign is only valid for OcspReq/RtcsReq/RevReq objects")
	}
	if err := o.checkWritable(); err != nil {
		return err
	}

	wrapped := asn1io.WrapSequence(body)
	if len(popMarker) > 0 {
		wrapped = append(wrapped, popMarker...)
	}
	o.EncodedBytes = wrapped
	o.Flags |= FlagSigChecked | FlagSelfSigned
	return nil
}

// parsePostSign walks EncodedBytes to populate the post-sign byte-slice
// pointers for issuerDN, subjectDN, and SPKI, per spec §4.5's "walks its
// own DER ... avoiding a re-parse each time a caller asks for these".
// Grounded on ca/ca.go's tbsCertIsDeterministic/extractTBSCertBytes, which
// use the same cryptobyte-ReadASN1-twice approach to reach the
// TBSCertificate without a full x509.ParseCertificate.
func (o *Object) parsePostSign() error {
	input := cryptobyte.String(o.EncodedBytes)
	var whole cryptobyte.String
	if !input.ReadASN1(&whole, cryptobyte_asn1.SEQUENCE) {
		return berrors.New(berrors.BadData, "malformed signed certificate")
	}

	var tbs cryptobyte.String
	if !whole.ReadASN1(&tbs, cryptobyte_asn1.SEQUENCE) {
		return berrors.New(berrors.BadData, "malformed TBSCertificate")
	}

	// version [0] EXPLICIT
	if tbs.PeekASN1Tag(cryptobyte_asn1.Tag(0xa0)) {
		var explicit cryptobyte.String
		if !tbs.ReadASN1(&explicit, cryptobyte_asn1.Tag(0xa0)) {
			return berrors.New(berrors.BadData, "malformed version")
		}
	}
	// serialNumber INTEGER
	var serial cryptobyte.String
	if !tbs.ReadASN1(&serial, cryptobyte_asn1.INTEGER) {
		return berrors.New(berrors.BadData, "malformed serialNumber")
	}
	// signature AlgorithmIdentifier
	var algo cryptobyte.String
	if !tbs.ReadASN1Element(&algo, cryptobyte_asn1.SEQUENCE) {
		return berrors.New(berrors.BadData, "malformed signature algorithm")
	}
	// issuer Name
	var issuer cryptobyte.String
	if !tbs.ReadASN1Element(&issuer, cryptobyte_asn1.SEQUENCE) {
		return berrors.New(berrors.BadData, "malformed issuer")
	}
	o.signedIssuerDN = []byte(issuer)
	// validity SEQUENCE
	var validity cryptobyte.String
	if !tbs.ReadASN1(&validity, cryptobyte_asn1.SEQUENCE) {
		return berrors.New(berrors.BadData, "malformed validity")
	}
	// subject Name
	var subject cryptobyte.String
	if !tbs.ReadASN1Element(&subject, cryptobyte_asn1.SEQUENCE) {
		return berrors.New(berrors.BadData, "malformed subject")
	}
	o.signedSubjectDN = []byte(subject)
	// subjectPublicKeyInfo SEQUENCE
	var spki cryptobyte.String
	if !tbs.ReadASN1Element(&spki, cryptobyte_asn1.SEQUENCE) {
		return berrors.New(berrors.BadData, "malformed subjectPublicKeyInfo")
	}
	o.signedSPKI = []byte(spki)
	return nil
}

// Verify checks the object's signature against issuerKey via sigengine.
func (o *Object) Verify(issuerKey crypto.PublicKey) error {
	if !o.signed() {
		return berrors.New(berrors.NotInited, "object is not signed")
	}
	if o.Flags.Has(FlagSigChecked) {
		return nil
	}
	if err := sigengine.VerifyX509(o.EncodedBytes, issuerKey); err != nil {
		return err
	}
	o.Flags |= FlagSigChecked
	return nil
}

// VerifySelfSigned checks a CertReq/CrmfReq's embedded public key against
// its own signature -- the only verification these kinds support, per spec
// §4.5: "can verify only its own self-signature; it is not a
// general-purpose signature-check key until promoted to a real Cert".
func (o *Object) VerifySelfSigned() error {
	if o.Kind != KindCertReq && o.Kind != KindCrmfReq {
		return berrors.New(berrors.Permission, "VerifySelfSigned is only valid for CertReq/CrmfReq objects")
	}
	return o.Verify(o.parsedKey)
}

// Destroy zeroises any secret material the object may be holding
// (currently none directly -- CertObject carries only public material --
// but provided for lifecycle symmetry with spec §4.5's "destroyed
// (zeroises secret material)" and as the hook a caller embedding a private
// key alongside an Object would extend).
func (o *Object) Destroy() {
	o.EncodedBytes = nil
	o.PublicKeyInfo = nil
	o.parsedKey = nil
}

// NameID returns identifier.NewNameID of the object's effective subject
// DN, for CertStore lookups (spec §4.3: certID is nameID of subject).
func (o *Object) NameID() (identifier.ID, error) {
	dn, err := o.EffectiveSubjectDN()
	if err != nil {
		return identifier.ID{}, err
	}
	return identifier.NewNameID(dn), nil
}

// IssuerID returns identifier.NewIssuerID of the object's effective issuer
// DN and serial, for CertStore lookups.
func (o *Object) IssuerID() (identifier.ID, error) {
	dn, err := o.EffectiveIssuerDN()
	if err != nil {
		return identifier.ID{}, err
	}
	return identifier.NewIssuerID(dn, o.Serial)
}

// SerialAsBigInt renders Serial as a *big.Int, for callers needing the
// numeric form (e.g. storage layer primary keys).
func (o *Object) SerialAsBigInt() *big.Int {
	return new(big.Int).SetBytes(o.Serial)
}
