package i18n

var ptBRCatalog = &Catalog{
	locale: "pt-BR",
	messages: map[Code]string{
		CodeVerificationMissingRecord:     "Um registro de verificação de assinatura é obrigatório",
		CodeVerificationWrongVerifier:     "O registro de verificação não foi produzido pelo programa Ed25519",
		CodeVerificationUnexpectedAccount: "O registro de verificação não pode referenciar contas",
		CodeVerificationSignatureCount:    "O registro de verificação deve conter exatamente uma assinatura",
		CodeVerificationNotVerifiable:     "A assinatura do registro de verificação não pode ser conferida isoladamente",
		CodeVerificationPublicKeyMismatch: "A aposta não foi assinada pela autoridade da casa",
		CodeVerificationSignatureMismatch: "A assinatura não corresponde ao registro verificado",
		CodeVerificationMessageMismatch:   "A assinatura não cobre esta aposta",
		CodeVerificationNativeFailed:      "A assinatura falhou na verificação",
		CodeArithmeticOverflow:            "O pagamento não pode ser representado",
		CodeTransferFailed:                "A transferência do pagamento não pôde ser concluída",
		CodeBetInvalidTarget:              "O alvo deve estar entre {{.Min}} e {{.Max}}",
		CodeBetInvalidAmount:              "O valor da aposta deve ser maior que zero",
		CodeBetInvalidSeed:                "A semente da aposta deve ser um inteiro sem sinal de 128 bits",
		CodeBetNotFound:                   "A aposta {{.Bet}} não foi encontrada",
		CodeBetAlreadyExists:              "Já existe uma aposta com esta semente",
		CodeBetRefundTooEarly:             "A aposta não pode ser reembolsada antes de {{.RefundableAt}}",
		CodeLedgerInsufficientFunds:       "A conta {{.Account}} não tem saldo suficiente",
		CodeLedgerSignerMismatch:          "O assinante do cofre não corresponde ao cofre",
		CodeLedgerFaucetDisabled:          "O financiamento está desativado nesta implantação",
		CodeLedgerVaultMissing:            "O cofre da casa ainda não foi inicializado",
		CodeLedgerVaultExists:             "O cofre da casa já foi inicializado",
		CodeInvalidAddress:                "{{.Field}} deve ser um endereço base58",
		CodeInvalidRequest:                "Requisição inválida: {{.Reason}}",
		CodeNotFound:                      "Recurso não encontrado",
		CodeUnknown:                       "Ocorreu um erro inesperado",
	},
}
