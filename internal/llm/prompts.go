package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fiscalstack/fiscaudit/pkg/core"
)

const sqlSystemPrompt = `Você é um especialista em SQL com profundo conhecimento em SQLite.
Sua tarefa é gerar uma consulta SQL otimizada e precisa que responda à
pergunta do usuário utilizando apenas as tabelas e colunas do schema
fornecido.

Restrições:
1. Use aspas duplas para nomes de tabelas e colunas.
2. Retorne uma única consulta SELECT, em uma única linha, sem
   explicações ou comentários.
3. Garanta compatibilidade total com SQLite.
4. Colunas monetárias podem estar armazenadas como TEXT (ex: "10,00").
   SEMPRE use CAST(coluna AS REAL) para comparações e agregações
   numéricas, por exemplo CAST("valor_total" AS REAL) > 100.50.
5. Para consultas que listam registros, limite os resultados; consultas
   de contagem ou agregação (COUNT, SUM, AVG) não precisam de LIMIT.
6. Sempre que possível, traga colunas adicionais que ajudem a
   identificar o resultado: razão social do emitente, nome do
   destinatário, data de emissão, valor da nota.

Formato de resposta: APENAS a consulta SQL, sem texto adicional.`

const narrativeSystemPrompt = `Você é um analista de dados fiscais. Analise os dados e forneça uma
resposta simples e clara em português.

Instruções:
- Forneça uma resposta direta e objetiva.
- Destaque os principais insights dos dados.
- Se houver muitos resultados, resuma os principais pontos.
- Use formatação adequada para números e valores (R$).

Retorne apenas a resposta final, sem explicações adicionais.`

const analysisSystemPrompt = `Você é um auditor fiscal especializado em NF-e. Revise o documento e as
inconsistências já detectadas pelas validações determinísticas e aponte
problemas fiscais adicionais: tributação incoerente, CFOP incompatível
com a operação, valores suspeitos.

Responda APENAS com JSON no formato:
{
  "narrative": "resumo da análise em português",
  "findings": [
    {"rule_id": "...", "severity": "error|warning|info", "subject": "chave de acesso", "message": "..."}
  ]
}

Use o rule_id da validação determinística quando estiver confirmando um
problema já detectado; use um identificador descritivo próprio para
problemas novos. Não invente dados que não estejam no documento.`

func buildSQLPrompt(question, schema string, previous *Attempt) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\nPergunta do usuário: %s\n", schema, question)
	if previous != nil {
		fmt.Fprintf(&b, `
A tentativa anterior falhou e precisa ser corrigida.
Consulta anterior: %s
Erro do SQLite: %s

Gere uma nova consulta corrigindo esse erro.
`, previous.SQL, previous.Err)
	}
	return b.String()
}

func buildNarrativePrompt(question, sql string, rows []map[string]any) (string, error) {
	results, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode query results: %w", err)
	}
	return fmt.Sprintf("Pergunta: %s\nSQL executado: %s\nResultados:\n%s\n",
		question, sql, results), nil
}

func buildAnalysisPrompt(record map[string]any, findings []core.Finding) (string, error) {
	doc, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode document: %w", err)
	}
	detected, err := json.MarshalIndent(findings, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode findings: %w", err)
	}
	return fmt.Sprintf("Documento:\n%s\n\nInconsistências detectadas:\n%s\n", doc, detected), nil
}
