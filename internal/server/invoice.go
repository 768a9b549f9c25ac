package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	clientdomain "github.com/smallbiznis/vetbill/internal/client/domain"
	invoicedomain "github.com/smallbiznis/vetbill/internal/invoice/domain"
	"github.com/smallbiznis/vetbill/internal/providers/pdf"
)

func (s *Server) ListInvoices(c *gin.Context) {
	var req invoicedomain.ListInvoiceRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.invoiceSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Invoices, "page_info": resp.PageInfo})
}

func (s *Server) GetInvoiceByID(c *gin.Context) {
	detail, err := s.invoiceSvc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": detail})
}

func (s *Server) CreateDraft(c *gin.Context) {
	var req invoicedomain.CreateDraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	invoice, err := s.invoiceSvc.CreateDraft(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": invoice})
}

func (s *Server) UpdateDraft(c *gin.Context) {
	var req invoicedomain.UpdateDraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}
	req.InvoiceID = c.Param("id")

	invoice, err := s.invoiceSvc.UpdateDraft(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": invoice})
}

func (s *Server) AddLine(c *gin.Context) {
	var line invoicedomain.LineInput
	if err := c.ShouldBindJSON(&line); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	invoice, err := s.invoiceSvc.AddLine(c.Request.Context(), invoicedomain.AddLineRequest{
		InvoiceID: c.Param("id"),
		Line:      line,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": invoice})
}

func (s *Server) UpdateLine(c *gin.Context) {
	var patch invoicedomain.LinePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	invoice, err := s.invoiceSvc.UpdateLine(c.Request.Context(), invoicedomain.UpdateLineRequest{
		InvoiceID: c.Param("id"),
		LineID:    c.Param("lineId"),
		Patch:     patch,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": invoice})
}

func (s *Server) RemoveLine(c *gin.Context) {
	invoice, err := s.invoiceSvc.RemoveLine(c.Request.Context(), invoicedomain.RemoveLineRequest{
		InvoiceID: c.Param("id"),
		LineID:    c.Param("lineId"),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": invoice})
}

func (s *Server) ApproveInvoice(c *gin.Context) {
	result, err := s.invoiceSvc.Approve(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) PostPayment(c *gin.Context) {
	var req invoicedomain.PostPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}
	req.InvoiceID = c.Param("id")

	result, err := s.invoiceSvc.PostPayment(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) RefundInvoice(c *gin.Context) {
	var req invoicedomain.RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}
	req.InvoiceID = c.Param("id")

	result, err := s.invoiceSvc.Refund(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) FiscalizeInvoice(c *gin.Context) {
	result, err := s.invoiceSvc.Fiscalize(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) DownloadReceiptPDF(c *gin.Context) {
	ctx := c.Request.Context()

	detail, err := s.invoiceSvc.GetByID(ctx, c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if detail.Receipt == nil {
		AbortWithError(c, invoicedomain.ErrReceiptNotFound)
		return
	}

	// Clients erased for GDPR keep their invoices; print the id instead.
	clientName := detail.Invoice.ClientID
	client, err := s.clientSvc.GetByID(ctx, detail.Invoice.ClientID)
	switch {
	case err == nil:
		clientName = client.Name
	case !errors.Is(err, clientdomain.ErrNotFound):
		AbortWithError(c, err)
		return
	}

	data, err := pdf.NewReceiptData(detail, clientName)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	doc, err := s.pdf.GenerateReceipt(ctx, data)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.FileName))
	c.Data(http.StatusOK, doc.ContentType, doc.Content)
}

func (s *Server) CreateNoShowFee(c *gin.Context) {
	var req invoicedomain.NoShowFeeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}
	req.ClientID = strings.TrimSpace(req.ClientID)

	invoice, err := s.invoiceSvc.CreateNoShowFeeInvoice(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": invoice})
}
