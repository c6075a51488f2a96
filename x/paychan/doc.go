/*
Package paychan implements a micro-payment channel ledger.

A sender escrows funds once and can then authorize any number of small
transfers to one or more recipients by issuing signed cheques off the chain.
A cheque carries a strictly increasing sequence number; cashing a cheque pays
out the difference between its sequence number and the last one consumed,
multiplied by the recipient's face value. Only deposits, cashing and closing
touch the chain, so individual payments are free.

Closing a recipient slot is a two phase protocol. With the recipient's
consent (a close commitment) the slot settles immediately. Without it, the
first close request only starts the dispute window, giving the recipient time
to cash outstanding cheques. Once the window elapsed a second close request
refunds whatever was not withdrawn and removes the slot.
*/
package paychan
