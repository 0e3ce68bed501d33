package store

import (
	"context"
	"database/sql"
	"fmt"
)

// InvoiceHeader holds one NF-e document header destined for
// nfe_notas_fiscais. Monetary fields parsed from XML are REAL; fields
// that may carry source formatting (comma decimals) stay TEXT.
type InvoiceHeader struct {
	AccessKey        string
	Model            string
	Series           string
	Number           string
	OperationNature  string
	IssueDate        string
	DepartureDate    string
	InvoiceType      string
	Environment      string
	Purpose          string
	EmissionProcess  string
	ProcessVersion   string
	IssuerTaxID      string
	IssuerName       string
	IssuerTradeName  string
	IssuerStateReg   string
	IssuerCRT        string
	IssuerState      string
	IssuerCity       string
	RecipientTaxID   string
	RecipientCPF     string
	RecipientName    string
	RecipientStateReg string
	RecipientIEInd   string
	RecipientState   string
	OperationDest    string
	FinalConsumer    string
	BuyerPresence    string
	TotalValue       string
	ProductsValue    float64
	FreightValue     float64
	InsuranceValue   float64
	DiscountValue    float64
	OtherValue       float64
	ICMSValue        float64
	IPIValue         float64
	PISValue         float64
	COFINSValue      float64
	SourceFile       string
	ProcessedAt      string
	XMLVersion       string
}

// InvoiceItem holds one product line destined for nfe_itens_nota.
type InvoiceItem struct {
	AccessKey          string
	ItemNumber         string
	ProductCode        string
	EAN                string
	Description        string
	NCM                string
	CFOP               string
	Quantity           string
	Unit               string
	UnitValue          string
	TotalValue         string
	TaxableUnit        string
	TaxableQuantity    float64
	TaxableUnitValue   float64
	FreightValue       float64
	InsuranceValue     float64
	DiscountValue      float64
	OtherValue         float64
	TotalIndicator     string
	ICMSOrigin         string
	ICMSCST            string
	ICMSCSOSN          string
	ICMSBCModality     string
	ICMSBase           float64
	ICMSRate           float64
	ICMSValue          float64
	ICMSBaseST         float64
	ICMSRateST         float64
	ICMSValueST        float64
	IPIFramework       string
	IPICST             string
	IPIBase            float64
	IPIRate            float64
	IPIValue           float64
	PISCST             string
	PISBase            float64
	PISRate            float64
	PISValue           float64
	COFINSCST          string
	COFINSBase         float64
	COFINSRate         float64
	COFINSValue        float64
	AdditionalInfo     string
}

// InsertInvoice persists a header and its items in one transaction. When
// the access key is already present the insert is skipped and isNew is
// false, so re-ingesting a batch never duplicates documents.
func (s *Store) InsertInvoice(ctx context.Context, h *InvoiceHeader, items []InvoiceItem) (id int64, isNew bool, err error) {
	if h.AccessKey == "" {
		return 0, false, fmt.Errorf("invoice header missing access key")
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		var existing int64
		scanErr := tx.QueryRowContext(ctx,
			"SELECT id FROM nfe_notas_fiscais WHERE chave_de_acesso = ?", h.AccessKey).Scan(&existing)
		if scanErr == nil {
			id = existing
			return nil
		}
		if scanErr != sql.ErrNoRows {
			return fmt.Errorf("failed to check for existing invoice: %w", scanErr)
		}

		res, execErr := tx.ExecContext(ctx, `
			INSERT INTO nfe_notas_fiscais (
				chave_de_acesso, modelo, serie, numero, natureza_da_operacao,
				data_emissao, data_saida, tipo_nf, ambiente, finalidade,
				processo_emissao, versao_processo,
				cpf_cnpj_emitente, razao_social_emitente, emit_fantasia,
				inscricao_estadual_emitente, emit_crt, uf_emitente, municipio_emitente,
				cnpj_destinatario, dest_cpf, nome_destinatario, dest_ie,
				indicador_ie_destinatario, uf_destinatario, destino_da_operacao,
				consumidor_final, presenca_do_comprador,
				valor_nota_fiscal, valor_produtos, valor_frete, valor_seguro,
				valor_desconto, valor_outros, valor_icms, valor_ipi, valor_pis, valor_cofins,
				arquivo_origem, data_processamento, versao_xml
			) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
			h.AccessKey, h.Model, h.Series, h.Number, h.OperationNature,
			h.IssueDate, h.DepartureDate, h.InvoiceType, h.Environment, h.Purpose,
			h.EmissionProcess, h.ProcessVersion,
			h.IssuerTaxID, h.IssuerName, h.IssuerTradeName,
			h.IssuerStateReg, h.IssuerCRT, h.IssuerState, h.IssuerCity,
			h.RecipientTaxID, h.RecipientCPF, h.RecipientName, h.RecipientStateReg,
			h.RecipientIEInd, h.RecipientState, h.OperationDest,
			h.FinalConsumer, h.BuyerPresence,
			h.TotalValue, h.ProductsValue, h.FreightValue, h.InsuranceValue,
			h.DiscountValue, h.OtherValue, h.ICMSValue, h.IPIValue, h.PISValue, h.COFINSValue,
			h.SourceFile, h.ProcessedAt, h.XMLVersion)
		if execErr != nil {
			return fmt.Errorf("failed to insert invoice header: %w", execErr)
		}
		newID, idErr := res.LastInsertId()
		if idErr != nil {
			return fmt.Errorf("failed to read invoice id: %w", idErr)
		}
		id = newID
		isNew = true

		if len(items) == 0 {
			return nil
		}
		stmt, prepErr := tx.PrepareContext(ctx, `
			INSERT INTO nfe_itens_nota (
				nota_id, chave_de_acesso, numero_produto, codigo_produto, codigo_ean,
				descricao_do_produto_servico, codigo_ncm_sh, cfop,
				quantidade, unidade, valor_unitario, valor_total,
				unidade_tributavel, quantidade_tributavel, valor_unitario_tributavel,
				valor_frete, valor_seguro, valor_desconto, valor_outros, indicador_total,
				icms_origem, icms_cst, icms_csosn, icms_modalidade_bc,
				icms_base_calculo, icms_aliquota, icms_valor,
				icms_base_calculo_st, icms_aliquota_st, icms_valor_st,
				ipi_codigo_enquadramento, ipi_cst, ipi_base_calculo, ipi_aliquota, ipi_valor,
				pis_cst, pis_base_calculo, pis_aliquota, pis_valor,
				cofins_cst, cofins_base_calculo, cofins_aliquota, cofins_valor,
				informacoes_adicionais
			) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
		if prepErr != nil {
			return fmt.Errorf("failed to prepare item insert: %w", prepErr)
		}
		defer stmt.Close()

		for _, it := range items {
			key := it.AccessKey
			if key == "" {
				key = h.AccessKey
			}
			if _, itemErr := stmt.ExecContext(ctx,
				id, key, it.ItemNumber, it.ProductCode, it.EAN,
				it.Description, it.NCM, it.CFOP,
				it.Quantity, it.Unit, it.UnitValue, it.TotalValue,
				it.TaxableUnit, it.TaxableQuantity, it.TaxableUnitValue,
				it.FreightValue, it.InsuranceValue, it.DiscountValue, it.OtherValue, it.TotalIndicator,
				it.ICMSOrigin, it.ICMSCST, it.ICMSCSOSN, it.ICMSBCModality,
				it.ICMSBase, it.ICMSRate, it.ICMSValue,
				it.ICMSBaseST, it.ICMSRateST, it.ICMSValueST,
				it.IPIFramework, it.IPICST, it.IPIBase, it.IPIRate, it.IPIValue,
				it.PISCST, it.PISBase, it.PISRate, it.PISValue,
				it.COFINSCST, it.COFINSBase, it.COFINSRate, it.COFINSValue,
				it.AdditionalInfo); itemErr != nil {
				return fmt.Errorf("failed to insert invoice item: %w", itemErr)
			}
		}
		return nil
	})
	if err != nil {
		return 0, false, err
	}
	return id, isNew, nil
}

// UpdateValidation records the rule-engine verdict on an invoice header.
func (s *Store) UpdateValidation(ctx context.Context, accessKey, status, inconsistencies string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE nfe_notas_fiscais
		SET status_validacao = ?, inconsistencias = ?
		WHERE chave_de_acesso = ?`,
		status, inconsistencies, accessKey)
	if err != nil {
		return fmt.Errorf("failed to update validation status: %w", err)
	}
	return nil
}
