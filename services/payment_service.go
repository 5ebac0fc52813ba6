package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"pdfdesk/apperrors"
	"pdfdesk/mail"
	"pdfdesk/models"
	"pdfdesk/payment"
	"pdfdesk/repository"
)

const defaultCurrency = "USD"

// PaymentService runs the checkout flow for subscriptions and top-up packs.
// Fulfilment is reached from both the redirect verification and the
// webhook; the pending→success transition decides which one applies it.
type PaymentService struct {
	payments      repository.PaymentRepository
	topups        repository.TopupRepository
	plans         *PlanService
	credits       *CreditService
	subscriptions *SubscriptionService
	gateway       payment.Gateway
	mailer        mail.Sender
	logger        *logrus.Logger
	now           func() time.Time
}

func NewPaymentService(
	payments repository.PaymentRepository,
	topups repository.TopupRepository,
	plans *PlanService,
	credits *CreditService,
	subscriptions *SubscriptionService,
	gateway payment.Gateway,
	mailer mail.Sender,
	logger *logrus.Logger,
) *PaymentService {
	return &PaymentService{
		payments:      payments,
		topups:        topups,
		plans:         plans,
		credits:       credits,
		subscriptions: subscriptions,
		gateway:       gateway,
		mailer:        mailer,
		logger:        logger,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Packages lists the active top-up packages.
func (ps *PaymentService) Packages(ctx context.Context) ([]models.TopupPackage, error) {
	packages, err := ps.topups.ListActive(ctx)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	return packages, nil
}

func (ps *PaymentService) CreateSubscriptionOrder(ctx context.Context, user *models.User, req models.SubscriptionOrderRequest) (*models.Payment, error) {
	plan, err := ps.plans.GetBySlug(ctx, req.Plan)
	if err != nil {
		return nil, err
	}
	if !plan.IsActive {
		return nil, apperrors.ErrPlanNotFound
	}
	if plan.IsFree {
		return nil, apperrors.BadRequest("payment", "The free plan does not require payment")
	}

	currency := strings.ToUpper(req.Currency)
	if currency == "" {
		currency = defaultCurrency
	}
	amount, err := plan.Price(req.BillingCycle, currency)
	if err != nil {
		return nil, apperrors.BadRequest("payment", err.Error())
	}

	planID := plan.ID
	p := ps.newPayment(user, models.PaymentSubscription, amount, currency)
	p.PlanID = &planID
	p.BillingCycle = req.BillingCycle
	p.Description = fmt.Sprintf("%s plan (%s)", plan.Name, req.BillingCycle)

	return ps.checkout(ctx, user, p, map[string]string{"plan": plan.Slug, "billing_cycle": string(req.BillingCycle)})
}

func (ps *PaymentService) CreateTopupOrder(ctx context.Context, user *models.User, packageID string) (*models.Payment, error) {
	id, err := primitive.ObjectIDFromHex(packageID)
	if err != nil {
		return nil, apperrors.ErrPackageNotFound
	}
	pkg, err := ps.topups.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.ErrPackageNotFound
	}
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	if !pkg.IsActive || pkg.TotalCredits <= 0 {
		return nil, apperrors.ErrPackageNotFound
	}

	currency := strings.ToUpper(pkg.Currency)
	if currency == "" {
		currency = defaultCurrency
	}
	p := ps.newPayment(user, models.PaymentTopup, pkg.Price, currency)
	p.PackageID = &pkg.ID
	p.Description = fmt.Sprintf("%s top-up pack", pkg.Name)
	p.CreditsAllocated = pkg.Credits

	return ps.checkout(ctx, user, p, map[string]string{"package_id": pkg.ID.Hex()})
}

func (ps *PaymentService) newPayment(user *models.User, kind models.PaymentKind, amount float64, currency string) *models.Payment {
	now := ps.now()
	return &models.Payment{
		ID:            primitive.NewObjectID(),
		UserID:        user.ID,
		Kind:          kind,
		Amount:        amount,
		Currency:      currency,
		Status:        models.PaymentPending,
		Gateway:       ps.gateway.Name(),
		UserSnapshot:  models.UserSnapshot{Name: user.Name, Email: user.Email},
		InvoiceNumber: invoiceNumber(now),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func (ps *PaymentService) checkout(ctx context.Context, user *models.User, p *models.Payment, metadata map[string]string) (*models.Payment, error) {
	if err := ps.payments.Create(ctx, p); err != nil {
		return nil, apperrors.DatabaseError(err)
	}

	metadata["kind"] = string(p.Kind)
	metadata["user_id"] = user.ID.Hex()
	co, err := ps.gateway.CreateCheckout(ctx, payment.CheckoutRequest{
		Reference:     p.ID.Hex(),
		Description:   p.Description,
		AmountMinor:   p.AmountMinor(),
		Currency:      p.Currency,
		CustomerEmail: user.Email,
		Metadata:      metadata,
	})
	if err != nil {
		ps.logger.WithError(err).WithField("payment_id", p.ID.Hex()).Error("Checkout creation failed")
		return nil, apperrors.ExternalService(err, "payment")
	}

	if err := ps.payments.AttachCheckout(ctx, p.ID, co.SessionID, co.URL); err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	p.TransactionID = co.SessionID
	p.CheckoutURL = co.URL

	ps.logger.WithFields(logrus.Fields{
		"payment_id":     p.ID.Hex(),
		"user_id":        user.ID.Hex(),
		"kind":           p.Kind,
		"amount":         p.Amount,
		"currency":       p.Currency,
		"transaction_id": co.SessionID,
	}).Info("Checkout created")
	return p, nil
}

// Verify confirms a checkout after the customer is redirected back.
func (ps *PaymentService) Verify(ctx context.Context, user *models.User, sessionID string) (*models.Payment, error) {
	p, err := ps.payments.GetByTransactionID(ctx, sessionID)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && p.UserID != user.ID) {
		return nil, apperrors.ErrPaymentNotFound
	}
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}

	switch p.Status {
	case models.PaymentSuccess:
		return p, nil
	case models.PaymentFailed, models.PaymentRefunded:
		return nil, apperrors.PaymentFailed(nil, "This payment did not complete. Please try again.")
	}

	co, err := ps.gateway.RetrieveCheckout(ctx, sessionID)
	if err != nil {
		return nil, apperrors.ExternalService(err, "payment")
	}
	if co.Expired {
		ps.markFailed(ctx, p, "checkout expired")
		return nil, apperrors.PaymentFailed(nil, "The checkout session expired. Please try again.")
	}
	if !co.Paid {
		return nil, apperrors.PaymentFailed(nil, "Payment has not been completed yet.")
	}
	return ps.fulfil(ctx, p, co.PaymentRef)
}

// HandleWebhook applies a signed gateway event. Unknown sessions and event
// types are acknowledged and ignored.
func (ps *PaymentService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := ps.gateway.ParseWebhook(payload, signature)
	if errors.Is(err, payment.ErrInvalidSignature) {
		return apperrors.New(apperrors.CodeUnauthorized, "payment", "Invalid webhook signature", http.StatusBadRequest).WithError(err)
	}
	if err != nil {
		return apperrors.BadRequest("payment", "Malformed webhook payload").WithError(err)
	}

	log := ps.logger.WithFields(logrus.Fields{
		"event_id":   event.ID,
		"event_type": event.RawType,
	})

	switch event.Type {
	case payment.EventCheckoutCompleted:
		p, err := ps.payments.GetByTransactionID(ctx, event.SessionID)
		if errors.Is(err, repository.ErrNotFound) {
			log.WithField("transaction_id", event.SessionID).Warn("Webhook for unknown checkout")
			return nil
		}
		if err != nil {
			return apperrors.DatabaseError(err)
		}
		if p.Status != models.PaymentPending {
			return nil
		}
		_, err = ps.fulfil(ctx, p, event.PaymentRef)
		return err

	case payment.EventCheckoutFailed:
		p, err := ps.payments.GetByTransactionID(ctx, event.SessionID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		if err != nil {
			return apperrors.DatabaseError(err)
		}
		ps.markFailed(ctx, p, "checkout "+event.RawType)
		return nil

	case payment.EventRefunded:
		return ps.refund(ctx, log, event.PaymentRef)
	}

	log.Debug("Ignoring webhook event")
	return nil
}

// fulfil applies a paid checkout exactly once.
func (ps *PaymentService) fulfil(ctx context.Context, p *models.Payment, paymentRef string) (*models.Payment, error) {
	paidAt := ps.now()
	set := bson.M{"paid_at": paidAt}
	if paymentRef != "" {
		set["payment_ref"] = paymentRef
	}
	log := ps.logger.WithFields(logrus.Fields{
		"payment_id":     p.ID.Hex(),
		"transaction_id": p.TransactionID,
		"kind":           p.Kind,
	})

	switch p.Kind {
	case models.PaymentTopup:
		if p.PackageID == nil {
			return nil, apperrors.InternalError(fmt.Errorf("top-up payment %s has no package", p.ID.Hex()))
		}
		// granting is keyed on the transaction, so a racing path cannot grant twice
		_, err := ps.credits.Grant(ctx, p.UserID, models.CreditPurchase{
			PackageID:     *p.PackageID,
			PaymentID:     p.ID,
			TransactionID: p.TransactionID,
			Credits:       p.CreditsAllocated,
			PurchasedAt:   paidAt,
		})
		if err != nil {
			return nil, err
		}
		won, err := ps.payments.Transition(ctx, p.TransactionID, models.PaymentPending, models.PaymentSuccess, set)
		if err != nil {
			return nil, apperrors.DatabaseError(err)
		}
		if !won {
			return ps.reload(ctx, p)
		}
		if err := ps.topups.IncrementPurchaseCount(ctx, *p.PackageID); err != nil {
			log.WithError(err).Warn("Failed to count package purchase")
		}

	case models.PaymentSubscription:
		if p.PlanID == nil {
			return nil, apperrors.InternalError(fmt.Errorf("subscription payment %s has no plan", p.ID.Hex()))
		}
		plan, err := ps.plans.GetByID(ctx, *p.PlanID)
		if err != nil {
			log.WithError(err).Error("Paid plan no longer exists")
			return nil, err
		}
		// the payment stays pending until the plan is applied, so a failed
		// activation is retried by the next verify or webhook delivery
		if _, err := ps.subscriptions.ActivateForPayment(ctx, p.UserID, p.ID, plan, p.BillingCycle); err != nil {
			log.WithError(err).Error("Subscription activation failed after payment")
			return nil, err
		}
		won, err := ps.payments.Transition(ctx, p.TransactionID, models.PaymentPending, models.PaymentSuccess, set)
		if err != nil {
			return nil, apperrors.DatabaseError(err)
		}
		if !won {
			return ps.reload(ctx, p)
		}

	default:
		return nil, apperrors.InternalError(fmt.Errorf("unknown payment kind %q", p.Kind))
	}

	p.Status = models.PaymentSuccess
	p.PaidAt = &paidAt
	if paymentRef != "" {
		p.PaymentRef = paymentRef
	}
	log.WithField("amount", p.Amount).Info("Payment fulfilled")

	ps.sendInvoice(context.WithoutCancel(ctx), p)
	return p, nil
}

func (ps *PaymentService) reload(ctx context.Context, p *models.Payment) (*models.Payment, error) {
	fresh, err := ps.payments.GetByTransactionID(ctx, p.TransactionID)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	if fresh.Status != models.PaymentSuccess {
		return nil, apperrors.PaymentFailed(nil, "This payment did not complete. Please try again.")
	}
	return fresh, nil
}

func (ps *PaymentService) markFailed(ctx context.Context, p *models.Payment, reason string) {
	won, err := ps.payments.Transition(ctx, p.TransactionID, models.PaymentPending, models.PaymentFailed, bson.M{"failure_reason": reason})
	if err != nil {
		ps.logger.WithError(err).WithField("payment_id", p.ID.Hex()).Error("Failed to mark payment failed")
		return
	}
	if won {
		p.Status = models.PaymentFailed
		p.FailureReason = reason
		ps.logger.WithFields(logrus.Fields{
			"payment_id": p.ID.Hex(),
			"reason":     reason,
		}).Info("Payment failed")
	}
}

// refund marks a settled payment refunded. Granted credits and activated
// plans are left in place for manual review.
func (ps *PaymentService) refund(ctx context.Context, log *logrus.Entry, paymentRef string) error {
	if paymentRef == "" {
		return nil
	}
	p, err := ps.payments.GetByPaymentRef(ctx, paymentRef)
	if errors.Is(err, repository.ErrNotFound) {
		log.WithField("payment_ref", paymentRef).Warn("Refund for unknown payment")
		return nil
	}
	if err != nil {
		return apperrors.DatabaseError(err)
	}

	won, err := ps.payments.Transition(ctx, p.TransactionID, models.PaymentSuccess, models.PaymentRefunded, nil)
	if err != nil {
		return apperrors.DatabaseError(err)
	}
	if won {
		log.WithFields(logrus.Fields{
			"payment_id": p.ID.Hex(),
			"user_id":    p.UserID.Hex(),
			"kind":       p.Kind,
		}).Warn("Payment refunded, entitlements need review")
	}
	return nil
}

func (ps *PaymentService) History(ctx context.Context, user *models.User, page, limit int) ([]models.Payment, int64, error) {
	page, limit = normalizePage(page, limit)
	payments, total, err := ps.payments.ListForUser(ctx, user.ID, int64(page), int64(limit))
	if err != nil {
		return nil, 0, apperrors.DatabaseError(err)
	}
	return payments, total, nil
}

// Invoice returns the receipt of a settled payment.
func (ps *PaymentService) Invoice(ctx context.Context, user *models.User, id primitive.ObjectID) (*mail.Invoice, error) {
	p, err := ps.payments.GetForUser(ctx, user.ID, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.ErrPaymentNotFound
	}
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	if p.Status != models.PaymentSuccess && p.Status != models.PaymentRefunded {
		return nil, apperrors.NotFound("payment", "No invoice for an unpaid payment")
	}
	inv := buildInvoice(p)
	return &inv, nil
}

func (ps *PaymentService) sendInvoice(ctx context.Context, p *models.Payment) {
	log := ps.logger.WithField("payment_id", p.ID.Hex())
	if p.UserSnapshot.Email == "" {
		return
	}
	msg, err := mail.RenderInvoice(buildInvoice(p))
	if err != nil {
		log.WithError(err).Error("Failed to render invoice")
		return
	}
	if err := ps.mailer.Send(ctx, msg); err != nil {
		log.WithError(err).Error("Failed to send invoice")
		return
	}
	if err := ps.payments.MarkInvoiceSent(ctx, p.ID); err != nil {
		log.WithError(err).Warn("Failed to flag invoice as sent")
		return
	}
	p.InvoiceSent = true
}

func buildInvoice(p *models.Payment) mail.Invoice {
	issued := p.CreatedAt
	if p.PaidAt != nil {
		issued = *p.PaidAt
	}
	inv := mail.Invoice{
		Number:        p.InvoiceNumber,
		IssuedAt:      issued,
		CustomerName:  p.UserSnapshot.Name,
		Email:         p.UserSnapshot.Email,
		Description:   p.Description,
		Amount:        p.Amount,
		Currency:      p.Currency,
		TransactionID: p.TransactionID,
		Status:        string(p.Status),
	}
	for _, c := range models.Categories {
		if n := p.CreditsAllocated[c]; n > 0 {
			inv.Lines = append(inv.Lines, mail.Line{Label: c.Label(), Quantity: n})
		}
	}
	return inv
}

func invoiceNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("INV-%s-%s", now.Format("20060102"), suffix)
}
