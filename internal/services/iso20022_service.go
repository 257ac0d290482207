package services

import (
	"encoding/xml"
	"errors"
	"fmt"
	"time"

	"github.com/earnhub/backend/internal/models"
	"github.com/google/uuid"
	"github.com/moov-io/iso20022/pkg/common"
	"github.com/moov-io/iso20022/pkg/pacs_v08"
)

// ISO20022Service renders withdrawal payouts as pacs messages for the settlement bank
type ISO20022Service struct {
	debtorBIC  string
	debtorName string
	now        func() time.Time
	newID      func() string
}

func NewISO20022Service(debtorBIC, debtorName string) *ISO20022Service {
	return &ISO20022Service{debtorBIC: debtorBIC, debtorName: debtorName, now: time.Now, newID: uuid.NewString}
}

// CreatePacs008 creates a pacs.008 credit transfer paying the net amount of an approved withdrawal
// to the bank snapshotted on it. The creditor account number travels in the queue envelope.
func (iso *ISO20022Service) CreatePacs008(w *models.Withdrawal, currency string) (*pacs_v08.FIToFICustomerCreditTransferV08, error) {
	if w.Destination == nil {
		return nil, ErrNoPayoutDestination
	}
	if len(currency) != 3 {
		return nil, fmt.Errorf("invalid currency code %q", currency)
	}

	msgId := iso.newID()
	creDtTm := iso.now()
	settlementDate := creDtTm
	amount := w.NetAmount.InexactFloat64()
	ccy := common.ActiveCurrencyCode(currency)

	doc := &pacs_v08.FIToFICustomerCreditTransferV08{
		GrpHdr: pacs_v08.GroupHeader93{
			MsgId:   common.Max35Text(msgId),
			CreDtTm: common.ISODateTime(creDtTm),
			NbOfTxs: "1",
			TtlIntrBkSttlmAmt: &pacs_v08.ActiveCurrencyAndAmount{
				Ccy:   ccy,
				Value: amount,
			},
			IntrBkSttlmDt: (*common.ISODate)(&settlementDate),
			SttlmInf: pacs_v08.SettlementInstruction7{
				SttlmMtd: "CLRG",
			},
		},
		CdtTrfTxInf: []pacs_v08.CreditTransferTransaction39{
			{
				PmtId: pacs_v08.PaymentIdentification7{
					InstrId:    &[]common.Max35Text{common.Max35Text(w.ID)}[0],
					EndToEndId: common.Max35Text(fmt.Sprintf("%.30s-%d", w.ID, w.Revision)),
					TxId:       &[]common.Max35Text{common.Max35Text(w.ID)}[0],
				},
				IntrBkSttlmAmt: pacs_v08.ActiveCurrencyAndAmount{
					Ccy:   ccy,
					Value: amount,
				},
				IntrBkSttlmDt: (*common.ISODate)(&settlementDate),
				ChrgBr:        "SLEV",
				DbtrAgt: pacs_v08.BranchAndFinancialInstitutionIdentification6{
					FinInstnId: pacs_v08.FinancialInstitutionIdentification18{
						BICFI: &[]common.BICFIDec2014Identifier{common.BICFIDec2014Identifier(iso.debtorBIC)}[0],
					},
				},
				Dbtr: pacs_v08.PartyIdentification135{
					Nm: &[]common.Max140Text{common.Max140Text(iso.debtorName)}[0],
				},
				CdtrAgt: pacs_v08.BranchAndFinancialInstitutionIdentification6{
					FinInstnId: pacs_v08.FinancialInstitutionIdentification18{
						ClrSysMmbId: &pacs_v08.ClearingSystemMemberIdentification2{
							MmbId: common.Max35Text(w.Destination.BranchCode),
						},
					},
				},
				Cdtr: pacs_v08.PartyIdentification135{
					Nm: &[]common.Max140Text{common.Max140Text(w.Destination.AccountTitle)}[0],
				},
			},
		},
	}

	return doc, nil
}

// CreatePacs002 creates a pacs.002 status report for a previously queued payout
func (iso *ISO20022Service) CreatePacs002(w *models.Withdrawal, status string) (*pacs_v08.FIToFIPaymentStatusReportV08, error) {
	if status == "" {
		return nil, errors.New("status code is required")
	}
	msgId := iso.newID()
	creDtTm := iso.now()

	doc := &pacs_v08.FIToFIPaymentStatusReportV08{
		GrpHdr: pacs_v08.GroupHeader53{
			MsgId:   common.Max35Text(msgId),
			CreDtTm: common.ISODateTime(creDtTm),
		},
		TxInfAndSts: []pacs_v08.PaymentTransaction80{
			{
				OrgnlInstrId: &[]common.Max35Text{common.Max35Text(w.ID)}[0],
				OrgnlTxId:    &[]common.Max35Text{common.Max35Text(w.ID)}[0],
				TxSts:        &[]pacs_v08.ExternalPaymentTransactionStatus1Code{pacs_v08.ExternalPaymentTransactionStatus1Code(status)}[0],
			},
		},
	}

	return doc, nil
}

// ConvertToXML converts ISO20022 document to XML string
func (iso *ISO20022Service) ConvertToXML(doc any) (string, error) {
	xmlData, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal XML: %w", err)
	}
	return xml.Header + string(xmlData), nil
}
