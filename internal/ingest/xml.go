package ingest

import (
	"encoding/xml"
	"strings"
	"time"

	"github.com/fiscalstack/fiscaudit/internal/store"
	"github.com/fiscalstack/fiscaudit/pkg/core"
)

// NF-e layout 4.00 documents. Tags carry only local names so both the
// standard portal namespace and namespace-less test files decode.

type xmlEnviNFe struct {
	XMLName xml.Name `xml:"enviNFe"`
	Versao  string   `xml:"versao,attr"`
	IDLote  string   `xml:"idLote"`
	NFes    []xmlNFe `xml:"NFe"`
}

type xmlNFeProc struct {
	XMLName xml.Name `xml:"nfeProc"`
	NFe     xmlNFe   `xml:"NFe"`
}

type xmlNFe struct {
	XMLName xml.Name   `xml:"NFe"`
	InfNFe  *xmlInfNFe `xml:"infNFe"`
}

type xmlInfNFe struct {
	ID      string      `xml:"Id,attr"`
	Versao  string      `xml:"versao,attr"`
	Ide     xmlIde      `xml:"ide"`
	Emit    xmlEmit     `xml:"emit"`
	Dest    xmlDest     `xml:"dest"`
	Det     []xmlDet    `xml:"det"`
	Total   xmlTotal    `xml:"total"`
	InfAdic *xmlInfAdic `xml:"infAdic"`
}

type xmlIde struct {
	NatOp   string `xml:"natOp"`
	Mod     string `xml:"mod"`
	Serie   string `xml:"serie"`
	NNF     string `xml:"nNF"`
	DhEmi   string `xml:"dhEmi"`
	DEmi    string `xml:"dEmi"`
	DhSaiEnt string `xml:"dhSaiEnt"`
	DSaiEnt string `xml:"dSaiEnt"`
	TpNF    string `xml:"tpNF"`
	TpAmb   string `xml:"tpAmb"`
	FinNFe  string `xml:"finNFe"`
	IndFinal string `xml:"indFinal"`
	IndPres string `xml:"indPres"`
	IDDest  string `xml:"idDest"`
	ProcEmi string `xml:"procEmi"`
	VerProc string `xml:"verProc"`
}

type xmlEnder struct {
	XMun string `xml:"xMun"`
	UF   string `xml:"UF"`
}

type xmlEmit struct {
	CNPJ  string    `xml:"CNPJ"`
	CPF   string    `xml:"CPF"`
	XNome string    `xml:"xNome"`
	XFant string    `xml:"xFant"`
	IE    string    `xml:"IE"`
	CRT   string    `xml:"CRT"`
	Ender *xmlEnder `xml:"enderEmit"`
}

type xmlDest struct {
	CNPJ     string    `xml:"CNPJ"`
	CPF      string    `xml:"CPF"`
	XNome    string    `xml:"xNome"`
	IE       string    `xml:"IE"`
	IndIEDest string   `xml:"indIEDest"`
	Ender    *xmlEnder `xml:"enderDest"`
}

type xmlDet struct {
	NItem     string      `xml:"nItem,attr"`
	Prod      xmlProd     `xml:"prod"`
	Imposto   xmlImposto  `xml:"imposto"`
	InfAdProd string      `xml:"infAdProd"`
}

type xmlProd struct {
	CProd  string `xml:"cProd"`
	CEAN   string `xml:"cEAN"`
	XProd  string `xml:"xProd"`
	NCM    string `xml:"NCM"`
	CFOP   string `xml:"CFOP"`
	UCom   string `xml:"uCom"`
	QCom   string `xml:"qCom"`
	VUnCom string `xml:"vUnCom"`
	VProd  string `xml:"vProd"`
	UTrib  string `xml:"uTrib"`
	QTrib  string `xml:"qTrib"`
	VUnTrib string `xml:"vUnTrib"`
	VFrete string `xml:"vFrete"`
	VSeg   string `xml:"vSeg"`
	VDesc  string `xml:"vDesc"`
	VOutro string `xml:"vOutro"`
	IndTot string `xml:"indTot"`
}

type xmlImposto struct {
	ICMS   *xmlICMS   `xml:"ICMS"`
	IPI    *xmlIPI    `xml:"IPI"`
	PIS    *xmlPIS    `xml:"PIS"`
	COFINS *xmlCOFINS `xml:"COFINS"`
}

// xmlICMSVariant is the shared shape of the ICMS00..ICMS90 group elements.
type xmlICMSVariant struct {
	Orig    string `xml:"orig"`
	CST     string `xml:"CST"`
	CSOSN   string `xml:"CSOSN"`
	ModBC   string `xml:"modBC"`
	VBC     string `xml:"vBC"`
	PICMS   string `xml:"pICMS"`
	VICMS   string `xml:"vICMS"`
	VBCST   string `xml:"vBCST"`
	PICMSST string `xml:"pICMSST"`
	VICMSST string `xml:"vICMSST"`
}

type xmlICMS struct {
	ICMS00  *xmlICMSVariant `xml:"ICMS00"`
	ICMS10  *xmlICMSVariant `xml:"ICMS10"`
	ICMS20  *xmlICMSVariant `xml:"ICMS20"`
	ICMS30  *xmlICMSVariant `xml:"ICMS30"`
	ICMS40  *xmlICMSVariant `xml:"ICMS40"`
	ICMS51  *xmlICMSVariant `xml:"ICMS51"`
	ICMS60  *xmlICMSVariant `xml:"ICMS60"`
	ICMS70  *xmlICMSVariant `xml:"ICMS70"`
	ICMS90  *xmlICMSVariant `xml:"ICMS90"`
	ICMSSN101 *xmlICMSVariant `xml:"ICMSSN101"`
	ICMSSN102 *xmlICMSVariant `xml:"ICMSSN102"`
	ICMSSN500 *xmlICMSVariant `xml:"ICMSSN500"`
	ICMSSN900 *xmlICMSVariant `xml:"ICMSSN900"`
}

func (i *xmlICMS) variant() *xmlICMSVariant {
	for _, v := range []*xmlICMSVariant{
		i.ICMS00, i.ICMS10, i.ICMS20, i.ICMS30, i.ICMS40,
		i.ICMS51, i.ICMS60, i.ICMS70, i.ICMS90,
		i.ICMSSN101, i.ICMSSN102, i.ICMSSN500, i.ICMSSN900,
	} {
		if v != nil {
			return v
		}
	}
	return nil
}

type xmlIPI struct {
	CEnq    string `xml:"cEnq"`
	IPITrib *struct {
		CST  string `xml:"CST"`
		VBC  string `xml:"vBC"`
		PIPI string `xml:"pIPI"`
		VIPI string `xml:"vIPI"`
	} `xml:"IPITrib"`
	IPINT *struct {
		CST string `xml:"CST"`
	} `xml:"IPINT"`
}

// xmlTaxVariant is the shared shape of the PIS and COFINS group elements.
type xmlTaxVariant struct {
	CST   string `xml:"CST"`
	VBC   string `xml:"vBC"`
	PRate string `xml:"pPIS"`
	VTax  string `xml:"vPIS"`
}

type xmlPIS struct {
	Aliq *xmlTaxVariant `xml:"PISAliq"`
	Qtde *xmlTaxVariant `xml:"PISQtde"`
	NT   *xmlTaxVariant `xml:"PISNT"`
	Outr *xmlTaxVariant `xml:"PISOutr"`
}

func (p *xmlPIS) variant() *xmlTaxVariant {
	for _, v := range []*xmlTaxVariant{p.Aliq, p.Qtde, p.NT, p.Outr} {
		if v != nil {
			return v
		}
	}
	return nil
}

type xmlCOFINSVariant struct {
	CST   string `xml:"CST"`
	VBC   string `xml:"vBC"`
	PRate string `xml:"pCOFINS"`
	VTax  string `xml:"vCOFINS"`
}

type xmlCOFINS struct {
	Aliq *xmlCOFINSVariant `xml:"COFINSAliq"`
	Qtde *xmlCOFINSVariant `xml:"COFINSQtde"`
	NT   *xmlCOFINSVariant `xml:"COFINSNT"`
	Outr *xmlCOFINSVariant `xml:"COFINSOutr"`
}

func (c *xmlCOFINS) variant() *xmlCOFINSVariant {
	for _, v := range []*xmlCOFINSVariant{c.Aliq, c.Qtde, c.NT, c.Outr} {
		if v != nil {
			return v
		}
	}
	return nil
}

type xmlTotal struct {
	ICMSTot *struct {
		VICMS  string `xml:"vICMS"`
		VIPI   string `xml:"vIPI"`
		VPIS   string `xml:"vPIS"`
		VCOFINS string `xml:"vCOFINS"`
		VProd  string `xml:"vProd"`
		VFrete string `xml:"vFrete"`
		VSeg   string `xml:"vSeg"`
		VDesc  string `xml:"vDesc"`
		VOutro string `xml:"vOutro"`
		VNF    string `xml:"vNF"`
	} `xml:"ICMSTot"`
}

type xmlInfAdic struct {
	InfCpl string `xml:"infCpl"`
}

// Invoice pairs a parsed header with its line items.
type Invoice struct {
	Header *store.InvoiceHeader
	Items  []store.InvoiceItem
}

// parseXML parses an NF-e XML document. Standalone NFe, processed
// nfeProc, and enviNFe batch roots are all accepted; a batch yields one
// invoice per note.
func parseXML(filename string, data []byte) ([]Invoice, error) {
	root, err := rootElement(data)
	if err != nil {
		return nil, &core.MalformedDocumentError{Filename: filename, Reason: "invalid xml: " + err.Error()}
	}

	var notes []xmlNFe
	switch root {
	case "enviNFe":
		var batch xmlEnviNFe
		if err := xml.Unmarshal(data, &batch); err != nil {
			return nil, &core.MalformedDocumentError{Filename: filename, Reason: err.Error()}
		}
		notes = batch.NFes
	case "nfeProc":
		var proc xmlNFeProc
		if err := xml.Unmarshal(data, &proc); err != nil {
			return nil, &core.MalformedDocumentError{Filename: filename, Reason: err.Error()}
		}
		notes = []xmlNFe{proc.NFe}
	case "NFe":
		var nfe xmlNFe
		if err := xml.Unmarshal(data, &nfe); err != nil {
			return nil, &core.MalformedDocumentError{Filename: filename, Reason: err.Error()}
		}
		notes = []xmlNFe{nfe}
	default:
		return nil, &core.MalformedDocumentError{
			Filename: filename,
			Reason:   "root element must be NFe, nfeProc or enviNFe, got " + root,
		}
	}

	invoices := make([]Invoice, 0, len(notes))
	for _, note := range notes {
		if note.InfNFe == nil {
			return nil, &core.MalformedDocumentError{Filename: filename, Reason: "missing infNFe element"}
		}
		invoices = append(invoices, convertInvoice(filename, note.InfNFe))
	}
	if len(invoices) == 0 {
		return nil, &core.MalformedDocumentError{Filename: filename, Reason: "batch contains no NFe documents"}
	}
	return invoices, nil
}

// rootElement returns the local name of the document's root element.
func rootElement(data []byte) (string, error) {
	dec := xml.NewDecoder(strings.NewReader(string(data)))
	for {
		tok, err := dec.Token()
		if err != nil {
			return "", err
		}
		if start, ok := tok.(xml.StartElement); ok {
			return start.Name.Local, nil
		}
	}
}

func convertInvoice(filename string, inf *xmlInfNFe) Invoice {
	header := &store.InvoiceHeader{
		AccessKey:         strings.TrimPrefix(inf.ID, "NFe"),
		Model:             inf.Ide.Mod,
		Series:            inf.Ide.Serie,
		Number:            inf.Ide.NNF,
		OperationNature:   inf.Ide.NatOp,
		IssueDate:         firstNonEmpty(inf.Ide.DhEmi, inf.Ide.DEmi),
		DepartureDate:     firstNonEmpty(inf.Ide.DhSaiEnt, inf.Ide.DSaiEnt),
		InvoiceType:       inf.Ide.TpNF,
		Environment:       inf.Ide.TpAmb,
		Purpose:           inf.Ide.FinNFe,
		EmissionProcess:   inf.Ide.ProcEmi,
		ProcessVersion:    inf.Ide.VerProc,
		IssuerTaxID:       firstNonEmpty(inf.Emit.CNPJ, inf.Emit.CPF),
		IssuerName:        inf.Emit.XNome,
		IssuerTradeName:   inf.Emit.XFant,
		IssuerStateReg:    inf.Emit.IE,
		IssuerCRT:         inf.Emit.CRT,
		RecipientTaxID:    inf.Dest.CNPJ,
		RecipientCPF:      inf.Dest.CPF,
		RecipientName:     inf.Dest.XNome,
		RecipientStateReg: inf.Dest.IE,
		RecipientIEInd:    inf.Dest.IndIEDest,
		OperationDest:     inf.Ide.IDDest,
		FinalConsumer:     inf.Ide.IndFinal,
		BuyerPresence:     inf.Ide.IndPres,
		SourceFile:        filename,
		ProcessedAt:       time.Now().UTC().Format(time.RFC3339),
		XMLVersion:        inf.Versao,
	}
	if inf.Emit.Ender != nil {
		header.IssuerState = inf.Emit.Ender.UF
		header.IssuerCity = inf.Emit.Ender.XMun
	}
	if inf.Dest.Ender != nil {
		header.RecipientState = inf.Dest.Ender.UF
	}
	if tot := inf.Total.ICMSTot; tot != nil {
		header.TotalValue = tot.VNF
		header.ProductsValue = decimal(tot.VProd)
		header.FreightValue = decimal(tot.VFrete)
		header.InsuranceValue = decimal(tot.VSeg)
		header.DiscountValue = decimal(tot.VDesc)
		header.OtherValue = decimal(tot.VOutro)
		header.ICMSValue = decimal(tot.VICMS)
		header.IPIValue = decimal(tot.VIPI)
		header.PISValue = decimal(tot.VPIS)
		header.COFINSValue = decimal(tot.VCOFINS)
	}

	items := make([]store.InvoiceItem, 0, len(inf.Det))
	for _, det := range inf.Det {
		item := store.InvoiceItem{
			AccessKey:        header.AccessKey,
			ItemNumber:       det.NItem,
			ProductCode:      det.Prod.CProd,
			EAN:              det.Prod.CEAN,
			Description:      det.Prod.XProd,
			NCM:              det.Prod.NCM,
			CFOP:             det.Prod.CFOP,
			Quantity:         det.Prod.QCom,
			Unit:             det.Prod.UCom,
			UnitValue:        det.Prod.VUnCom,
			TotalValue:       det.Prod.VProd,
			TaxableUnit:      det.Prod.UTrib,
			TaxableQuantity:  decimal(det.Prod.QTrib),
			TaxableUnitValue: decimal(det.Prod.VUnTrib),
			FreightValue:     decimal(det.Prod.VFrete),
			InsuranceValue:   decimal(det.Prod.VSeg),
			DiscountValue:    decimal(det.Prod.VDesc),
			OtherValue:       decimal(det.Prod.VOutro),
			TotalIndicator:   det.Prod.IndTot,
			AdditionalInfo:   det.InfAdProd,
		}
		if icms := det.Imposto.ICMS; icms != nil {
			if v := icms.variant(); v != nil {
				item.ICMSOrigin = v.Orig
				item.ICMSCST = v.CST
				item.ICMSCSOSN = v.CSOSN
				item.ICMSBCModality = v.ModBC
				item.ICMSBase = decimal(v.VBC)
				item.ICMSRate = decimal(v.PICMS)
				item.ICMSValue = decimal(v.VICMS)
				item.ICMSBaseST = decimal(v.VBCST)
				item.ICMSRateST = decimal(v.PICMSST)
				item.ICMSValueST = decimal(v.VICMSST)
			}
		}
		if ipi := det.Imposto.IPI; ipi != nil {
			item.IPIFramework = ipi.CEnq
			if ipi.IPITrib != nil {
				item.IPICST = ipi.IPITrib.CST
				item.IPIBase = decimal(ipi.IPITrib.VBC)
				item.IPIRate = decimal(ipi.IPITrib.PIPI)
				item.IPIValue = decimal(ipi.IPITrib.VIPI)
			} else if ipi.IPINT != nil {
				item.IPICST = ipi.IPINT.CST
			}
		}
		if pis := det.Imposto.PIS; pis != nil {
			if v := pis.variant(); v != nil {
				item.PISCST = v.CST
				item.PISBase = decimal(v.VBC)
				item.PISRate = decimal(v.PRate)
				item.PISValue = decimal(v.VTax)
			}
		}
		if cofins := det.Imposto.COFINS; cofins != nil {
			if v := cofins.variant(); v != nil {
				item.COFINSCST = v.CST
				item.COFINSBase = decimal(v.VBC)
				item.COFINSRate = decimal(v.PRate)
				item.COFINSValue = decimal(v.VTax)
			}
		}
		items = append(items, item)
	}

	return Invoice{Header: header, Items: items}
}

func decimal(value string) float64 {
	f, _ := core.ParseDecimal(value)
	return f
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
