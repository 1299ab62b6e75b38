package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/0xcafe-io/iz"
	appErrors "github.com/qwertyz15/expense-app/customErrors"
	"github.com/qwertyz15/expense-app/internal/auth"
	"github.com/qwertyz15/expense-app/internal/budget"
	"github.com/qwertyz15/expense-app/internal/contextutil"
	"github.com/qwertyz15/expense-app/internal/report"
	"github.com/qwertyz15/expense-app/logging"
	"github.com/sirupsen/logrus"
)

const authFailedMessage = "Authentication failed."

type Api struct {
	Service  *budget.BudgetTracker
	Reports  *report.Engine
	Resolver *auth.Resolver
}

func NewApi(service *budget.BudgetTracker, reports *report.Engine, resolver *auth.Resolver) *Api {
	return &Api{
		Service:  service,
		Reports:  reports,
		Resolver: resolver,
	}
}

// authenticate resolves the caller from the Authorization header and
// returns a context carrying its id. Every auth failure gets the same 401
// body; the reason only goes to the log.
func (api *Api) authenticate(r *iz.Request) (context.Context, auth.User, iz.Responder) {
	ctx := r.Context()
	user, err := api.Resolver.Resolve(ctx, r.Header.Get("Authorization"), api.Service.Now())
	if err != nil {
		traceID := contextutil.TraceIDFromContext(ctx)
		if auth.IsAuthFailure(err) {
			logging.Logger.WithFields(logrus.Fields{
				"trace_id": traceID,
				"path":     r.URL.Path,
			}).Debugf("authentication rejected: %v", err)
			return ctx, auth.User{}, iz.Respond().Status(401).JSON(ErrorBody{
				Code:    appErrors.ErrAuth,
				Message: authFailedMessage,
			})
		}
		logging.Logger.Errorf("[TraceID=%s] | failed to resolve caller: %v", traceID, err)
		return ctx, auth.User{}, errorResponse(err)
	}
	return contextutil.WithUserID(ctx, user.ID), user, nil
}

func errorResponse(err error) iz.Responder {
	return iz.Respond().Status(httpStatusFromError(err)).JSON(ErrorBody{
		Code:    appErrors.CodeOf(err),
		Message: appErrors.MessageOf(err),
	})
}

func badBody(err error) iz.Responder {
	return iz.Respond().Status(400).JSON(ErrorBody{
		Code:    appErrors.ErrInvalidInput,
		Message: fmt.Sprintf("invalid request body: %s", err.Error()),
	})
}

func noContent() iz.Responder {
	return iz.Respond().Status(204).Text("")
}

func (api *Api) HealthHandler(r *iz.Request) iz.Responder {
	if err := api.Service.CheckHealth(r.Context()); err != nil {
		logging.Logger.Errorf("[TraceID=%s] | health check failed: %v", contextutil.TraceIDFromContext(r.Context()), err)
		return iz.Respond().Status(503).JSON(HealthResponse{
			Status:  "unavailable",
			Storage: api.Service.StorageType,
		})
	}
	return iz.Respond().Status(200).JSON(HealthResponse{
		Status:  "ok",
		Storage: api.Service.StorageType,
	})
}

// --- AUTH --- //

func (api *Api) SignupHandler(r *iz.Request) iz.Responder {
	var req SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return badBody(err)
	}

	user, err := api.Service.SaveUser(r.Context(), auth.NewUser{
		Name:          req.Name,
		Email:         req.Email,
		PasswordPlain: req.Password,
	})
	if err != nil {
		return errorResponse(err)
	}
	return iz.Respond().Status(201).JSON(UserToHttp(user))
}

func (api *Api) LoginHandler(r *iz.Request) iz.Responder {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return badBody(err)
	}

	session, err := api.Service.GenerateSession(r.Context(), auth.UserCredentialsPure{
		Email:         req.Email,
		PasswordPlain: req.Password,
	})
	if err != nil {
		return errorResponse(err)
	}
	return iz.Respond().Status(200).JSON(TokenResponse{
		AccessToken: session.Token,
		TokenType:   session.TokenType,
		ExpiresAt:   session.ExpiresAt.UTC().Format(dateTimeLayout),
	})
}

func (api *Api) MeHandler(r *iz.Request) iz.Responder {
	_, user, failed := api.authenticate(r)
	if failed != nil {
		return failed
	}
	return iz.Respond().Status(200).JSON(UserToHttp(user))
}

func (api *Api) DeleteMeHandler(r *iz.Request) iz.Responder {
	ctx, user, failed := api.authenticate(r)
	if failed != nil {
		return failed
	}

	var req DeleteAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return badBody(err)
	}

	if err := api.Service.DeleteUser(ctx, user.ID, auth.DeleteUser{Password: req.Password}); err != nil {
		return errorResponse(err)
	}
	return noContent()
}

// --- CATEGORIES --- //

func (api *Api) SaveCategoryHandler(r *iz.Request) iz.Responder {
	ctx, user, failed := api.authenticate(r)
	if failed != nil {
		return failed
	}

	var req CategoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return badBody(err)
	}

	category, err := api.Service.SaveCategory(ctx, user.ID, budget.CategoryRequest{
		Name:  req.Name,
		Color: req.Color,
	})
	if err != nil {
		return errorResponse(err)
	}
	return iz.Respond().Status(201).JSON(CategoryToHttp(category))
}

func (api *Api) ListCategoriesHandler(r *iz.Request) iz.Responder {
	ctx, user, failed := api.authenticate(r)
	if failed != nil {
		return failed
	}

	categories, err := api.Service.ListCategories(ctx, user.ID)
	if err != nil {
		return errorResponse(err)
	}
	resp := make([]CategoryResponse, 0, len(categories))
	for _, c := range categories {
		resp = append(resp, CategoryToHttp(c))
	}
	return iz.Respond().Status(200).JSON(resp)
}

func (api *Api) UpdateCategoryHandler(r *iz.Request) iz.Responder {
	ctx, user, failed := api.authenticate(r)
	if failed != nil {
		return failed
	}

	id, err := parseID(r.PathValue("id"))
	if err != nil {
		return errorResponse(err)
	}

	var req CategoryUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return badBody(err)
	}

	category, err := api.Service.UpdateCategory(ctx, user.ID, id, budget.CategoryPatch{
		Name:  req.Name,
		Color: req.Color,
	})
	if err != nil {
		return errorResponse(err)
	}
	return iz.Respond().Status(200).JSON(CategoryToHttp(category))
}

func (api *Api) DeleteCategoryHandler(r *iz.Request) iz.Responder {
	ctx, user, failed := api.authenticate(r)
	if failed != nil {
		return failed
	}

	id, err := parseID(r.PathValue("id"))
	if err != nil {
		return errorResponse(err)
	}

	if err := api.Service.DeleteCategory(ctx, user.ID, id); err != nil {
		return errorResponse(err)
	}
	return noContent()
}

// --- EXPENSES --- //

func (api *Api) SaveExpenseHandler(r *iz.Request) iz.Responder {
	ctx, user, failed := api.authenticate(r)
	if failed != nil {
		return failed
	}

	var req ExpenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return badBody(err)
	}

	expense, err := api.Service.SaveExpense(ctx, user.ID, budget.ExpenseRequest{
		Description: req.Description,
		Amount:      req.Amount,
		SpentAt:     req.SpentAt,
		CategoryID:  req.CategoryID,
	})
	if err != nil {
		return errorResponse(err)
	}
	return iz.Respond().Status(201).JSON(ExpenseToHttp(expense))
}

func (api *Api) ListExpensesHandler(r *iz.Request) iz.Responder {
	ctx, user, failed := api.authenticate(r)
	if failed != nil {
		return failed
	}

	query, err := ExpenseCheckParams(r.URL.Query(), api.Service.Location())
	if err != nil {
		return errorResponse(err)
	}

	expenses, err := api.Service.ListExpenses(ctx, user.ID, query)
	if err != nil {
		return errorResponse(err)
	}
	resp := make([]ExpenseResponse, 0, len(expenses))
	for _, e := range expenses {
		resp = append(resp, ExpenseToHttp(e))
	}
	return iz.Respond().Status(200).JSON(resp)
}

func (api *Api) UpdateExpenseHandler(r *iz.Request) iz.Responder {
	ctx, user, failed := api.authenticate(r)
	if failed != nil {
		return failed
	}

	id, err := parseID(r.PathValue("id"))
	if err != nil {
		return errorResponse(err)
	}

	var req ExpenseUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return badBody(err)
	}

	patch := budget.ExpensePatch{
		Description: req.Description,
		Amount:      req.Amount,
		SpentAt:     req.SpentAt,
	}
	if req.CategoryID.Set {
		patch.CategoryID = req.CategoryID.Value
		patch.ClearCategory = req.CategoryID.Value == nil
	}

	expense, err := api.Service.UpdateExpense(ctx, user.ID, id, patch)
	if err != nil {
		return errorResponse(err)
	}
	return iz.Respond().Status(200).JSON(ExpenseToHttp(expense))
}

func (api *Api) DeleteExpenseHandler(r *iz.Request) iz.Responder {
	ctx, user, failed := api.authenticate(r)
	if failed != nil {
		return failed
	}

	id, err := parseID(r.PathValue("id"))
	if err != nil {
		return errorResponse(err)
	}

	if err := api.Service.DeleteExpense(ctx, user.ID, id); err != nil {
		return errorResponse(err)
	}
	return noContent()
}

// DailyTotalsHandler defaults to the last seven days ending today.
func (api *Api) DailyTotalsHandler(r *iz.Request) iz.Responder {
	ctx, user, failed := api.authenticate(r)
	if failed != nil {
		return failed
	}

	loc := api.Reports.Location()
	params := r.URL.Query()
	start, err := dateParam(params, "start_date", loc)
	if err != nil {
		return errorResponse(err)
	}
	end, err := dateParam(params, "end_date", loc)
	if err != nil {
		return errorResponse(err)
	}

	totals, err := api.Reports.DailyTotals(ctx, user.ID, zeroIfNil(start), zeroIfNil(end), api.Service.Now())
	if err != nil {
		return errorResponse(err)
	}
	resp := make([]DailyTotalResponse, 0, len(totals))
	for _, t := range totals {
		resp = append(resp, DailyTotalToHttp(t))
	}
	return iz.Respond().Status(200).JSON(resp)
}

// --- BUDGETS --- //

func (api *Api) SaveBudgetHandler(r *iz.Request) iz.Responder {
	ctx, user, failed := api.authenticate(r)
	if failed != nil {
		return failed
	}

	var req BudgetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return badBody(err)
	}

	month, err := parseMonth(req.Month)
	if err != nil {
		return errorResponse(err)
	}

	saved, err := api.Service.SaveBudget(ctx, user.ID, budget.BudgetRequest{
		Month:      month,
		Amount:     req.Amount,
		CategoryID: req.CategoryID,
	})
	if err != nil {
		return errorResponse(err)
	}
	return iz.Respond().Status(201).JSON(BudgetToHttp(saved))
}

func (api *Api) ListBudgetsHandler(r *iz.Request) iz.Responder {
	ctx, user, failed := api.authenticate(r)
	if failed != nil {
		return failed
	}

	budgets, err := api.Service.ListBudgets(ctx, user.ID)
	if err != nil {
		return errorResponse(err)
	}
	resp := make([]BudgetResponse, 0, len(budgets))
	for _, b := range budgets {
		resp = append(resp, BudgetToHttp(b))
	}
	return iz.Respond().Status(200).JSON(resp)
}

func (api *Api) DeleteBudgetHandler(r *iz.Request) iz.Responder {
	ctx, user, failed := api.authenticate(r)
	if failed != nil {
		return failed
	}

	id, err := parseID(r.PathValue("id"))
	if err != nil {
		return errorResponse(err)
	}

	if err := api.Service.DeleteBudget(ctx, user.ID, id); err != nil {
		return errorResponse(err)
	}
	return noContent()
}

// --- REPORTS --- //

func (api *Api) DashboardHandler(r *iz.Request) iz.Responder {
	ctx, user, failed := api.authenticate(r)
	if failed != nil {
		return failed
	}

	summary, err := api.Reports.Dashboard(ctx, user.ID, api.Service.Now())
	if err != nil {
		return errorResponse(err)
	}
	return iz.Respond().Status(200).JSON(DashboardToHttp(summary))
}
